package ota

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/muurk/edgent/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrInProgress is returned by Begin while another update is running.
	ErrInProgress = errors.New("update already in progress")
	// ErrNotStarted is returned by Write and End without a prior Begin.
	ErrNotStarted = errors.New("update not started")
	// ErrTooLarge is returned when an image exceeds the updater's limit.
	ErrTooLarge = errors.New("firmware image too large")
)

// Updater receives a firmware image chunk by chunk.
type Updater interface {
	// Begin starts an update. sizeHint is the expected size, or -1.
	Begin(sizeHint int64) error
	Write(chunk []byte) (int, error)
	// End finishes the update, committing it only when commit is true.
	End(commit bool) error
}

// FileUpdater writes images to Path, staging them in Path+".part".
type FileUpdater struct {
	Path string
	// MaxSize bounds the image size. Zero means unlimited.
	MaxSize int64

	mu      sync.Mutex
	f       *os.File
	written int64
}

// NewFileUpdater returns an updater writing to path.
func NewFileUpdater(path string, maxSize int64) *FileUpdater {
	return &FileUpdater{Path: path, MaxSize: maxSize}
}

var _ Updater = (*FileUpdater)(nil)

func (u *FileUpdater) partPath() string {
	return u.Path + ".part"
}

func (u *FileUpdater) Begin(sizeHint int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.f != nil {
		return ErrInProgress
	}
	if u.MaxSize > 0 && sizeHint > u.MaxSize {
		return fmt.Errorf("%w: %d bytes announced, limit %d", ErrTooLarge, sizeHint, u.MaxSize)
	}

	if err := os.MkdirAll(filepath.Dir(u.Path), 0755); err != nil {
		return fmt.Errorf("failed to create update directory: %w", err)
	}
	f, err := os.OpenFile(u.partPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open update file: %w", err)
	}

	u.f = f
	u.written = 0
	logging.Info("Firmware update started",
		zap.String("path", u.Path),
		zap.Int64("size_hint", sizeHint),
	)
	return nil
}

func (u *FileUpdater) Write(chunk []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.f == nil {
		return 0, ErrNotStarted
	}
	if u.MaxSize > 0 && u.written+int64(len(chunk)) > u.MaxSize {
		return 0, ErrTooLarge
	}
	n, err := u.f.Write(chunk)
	u.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write update chunk: %w", err)
	}
	return n, nil
}

func (u *FileUpdater) End(commit bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.f == nil {
		return ErrNotStarted
	}
	f := u.f
	u.f = nil

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to close update file: %w", err)
	}

	if !commit || u.written == 0 {
		_ = os.Remove(f.Name())
		if commit {
			return errors.New("empty firmware image")
		}
		logging.Warn("Firmware update aborted", zap.Int64("written", u.written))
		return nil
	}

	if err := os.Rename(f.Name(), u.Path); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to install update: %w", err)
	}

	logging.Info("Firmware update staged",
		zap.String("path", u.Path),
		zap.Int64("bytes", u.written),
	)
	return nil
}

// Written returns the number of bytes written by the current or last update.
func (u *FileUpdater) Written() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.written
}
