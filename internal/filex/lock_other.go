//go:build !unix

package filex

type noopUnlocker struct{}

func (noopUnlocker) Unlock() error { return nil }

// Lock is a no-op where flock is unavailable; the vault is single-process
// there.
func Lock(target string) (Unlocker, error) {
	return noopUnlocker{}, nil
}
