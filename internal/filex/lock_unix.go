//go:build unix

package filex

import (
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/sys/unix"
)

type flockUnlocker struct {
	f *os.File
}

// Lock takes an exclusive, non-blocking advisory lock on LockPath(target).
// It fails with common.ErrLocked when another holder exists, including a
// second Lock call from the same process.
func Lock(target string) (Unlocker, error) {
	f, err := os.OpenFile(LockPath(target), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, common.ErrLocked
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	return &flockUnlocker{f: f}, nil
}

func (l *flockUnlocker) Unlock() error {
	if l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("unflock: %w", err)
	}
	return cerr
}
