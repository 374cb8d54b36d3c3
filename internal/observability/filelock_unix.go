//go:build unix

package observability

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock on f, blocking until it is
// available. The returned function releases it. `otk serve` and one-shot
// commands may append to the same log from different processes.
func lockFile(f *os.File) (unlock func() error, err error) {
	fd := int(f.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring event log lock: %w", err)
	}
	return func() error {
		return unix.Flock(fd, unix.LOCK_UN)
	}, nil
}
