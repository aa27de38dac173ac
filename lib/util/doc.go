// Package util provides utility components shared by the largedict packages.
//
// The package contains:
//   - statistics: a SizeHistogram for tracking blob size distribution and
//     distribution statistics for shard balance reporting
//   - functions: seeded FNV-1a hashing, stripe selection and seed generation
//
// Nothing in this package is specific to a storage backend; memstore uses the
// hash for shard selection, largedict uses it to pick per-key I/O lock stripes.
package util
