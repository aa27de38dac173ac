// Package pool provides an explicit, caller owned pool of expensive objects
// grouped by class, such as one snapshot per model class and worker.
//
// Instead of a package level cache every user creates its own Pool, passes it
// where it is needed and clears it when done:
//
//	snapshots := pool.New(func(class string) (*Model, error) {
//		return buildModel(class)
//	})
//	models, err := snapshots.Acquire("resnet", 4)
//	...
//	snapshots.Clear()
package pool
