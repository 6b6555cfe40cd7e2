// Package lock guards a dataset directory against concurrent generation
// runs. Two runs writing the same image tree would silently interleave
// artifacts, so the lock is mandatory rather than advisory-by-convention.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileName is the lock file created at the dataset root.
const FileName = ".renderloop.lock"

// DatasetLock is an exclusive flock on a per-dataset lock file. The holder's
// PID is written into the file for operator diagnostics; the flock itself is
// what prevents the second run.
type DatasetLock struct {
	path string
	file *os.File
}

// ForDataset returns the lock for the dataset rooted at baseDir. The lock is
// not acquired yet.
func ForDataset(baseDir string) *DatasetLock {
	return &DatasetLock{path: filepath.Join(baseDir, FileName)}
}

// TryLock acquires the lock without blocking. It fails when another run
// holds the dataset.
func (dl *DatasetLock) TryLock() error {
	f, err := os.OpenFile(dl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire dataset lock (another run may be writing %s): %w", filepath.Dir(dl.path), err)
	}

	if err := dl.writePID(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return err
	}

	dl.file = f
	return nil
}

func (dl *DatasetLock) writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

// Unlock releases the lock and removes the lock file. Unlocking an
// unacquired lock is a no-op.
func (dl *DatasetLock) Unlock() error {
	if dl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(dl.file.Fd()), syscall.LOCK_UN); err != nil {
		dl.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := dl.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	os.Remove(dl.path)
	dl.file = nil
	return nil
}
