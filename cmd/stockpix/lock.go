package main

import "github.com/gofrs/flock"

// tryFlock attempts to acquire and immediately release the lock at path.
// True means nobody held it.
func tryFlock(path string) bool {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
	}
	return ok
}
