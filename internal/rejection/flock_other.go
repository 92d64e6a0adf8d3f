//go:build !unix

package rejection

import "os"

// Without flock the in-process key mutex is the only guard.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
