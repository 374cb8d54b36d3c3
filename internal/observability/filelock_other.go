//go:build !unix

package observability

import "os"

// lockFile is a no-op where flock is unavailable; appends rely on O_APPEND.
func lockFile(*os.File) (unlock func() error, err error) {
	return func() error { return nil }, nil
}
