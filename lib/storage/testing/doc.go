// Package testing provides a conformance suite every storage.Backend
// implementation runs from its own tests:
//
//	func Test(t *testing.T) {
//		storagetesting.RunBackendTests(t, "DiskStore", func() (storage.Backend, error) {
//			return diskstore.Open(t.TempDir())
//		})
//	}
package testing
