// Package cmd implements the ldict command-line tool. It wraps the largedict
// library for benchmarking and for looking into storage directories.
//
// The package is organized into several subpackages:
//
//   - perf: Load benchmark of a LargeDict (set, get, delete, mixed)
//   - inspect: Lists the blobs of a storage directory or SQLite file
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable of the form
// LDICT_<FLAG> (e.g. LDICT_LOG_LEVEL=debug), optionally from a .env or
// .env.local file. See ldict -help for a list of all commands.
package cmd
