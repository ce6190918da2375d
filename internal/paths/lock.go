package paths

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	apperrors "github.com/hakawati/hakawati/internal/errors"
)

// LockFile is the name of the single-instance lock inside the data directory.
const LockFile = "hakawati.lock"

// InstanceLock is an exclusive advisory lock held for the life of the process.
type InstanceLock struct {
	fl *flock.Flock
}

// Lock acquires the instance lock in dir without blocking. A lock held by
// another process is reported as OpenFailed, the same way the database
// engine reports a rejected open.
func Lock(dir string) (*InstanceLock, error) {
	path := filepath.Join(dir, LockFile)
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindOpenFailed, "acquire "+path, err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.KindOpenFailed, fmt.Sprintf("%s: held by another running instance", path))
	}
	return &InstanceLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.fl.Path()
}

// Release unlocks the file. It is safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
