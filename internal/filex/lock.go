package filex

// Unlocker releases a lock obtained with Lock.
type Unlocker interface {
	Unlock() error
}

// LockPath is the side file used to lock target.
func LockPath(target string) string {
	return target + ".lock"
}
