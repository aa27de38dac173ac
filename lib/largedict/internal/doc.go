// Package internal contains the key state table of a LargeDict: the
// lifecycle state of every key, the resident values, the recency order of
// resident keys and the handles of loads in flight, all behind one mutex.
package internal
