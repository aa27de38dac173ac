//go:build !unix

package diskstore

import "os"

// advisory directory locks are only implemented on unix
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
