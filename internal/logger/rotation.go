package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/ytget/streamproxy/internal/filesystem"
)

// RotatingWriter implements log rotation functionality
type RotatingWriter struct {
	fs         afero.Afero
	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool
	file       afero.File
	size       int64
	mu         sync.Mutex
	lastRotate time.Time
	now        func() time.Time
}

// NewRotatingWriter creates a new rotating writer on the active filesystem.
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	fs := filesystem.API()

	if err := fs.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := fs.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	return &RotatingWriter{
		fs:         fs,
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
		file:       file,
		size:       stat.Size(),
		lastRotate: time.Now(),
		now:        time.Now,
	}, nil
}

// NewRotatingWriterFromConfig parses the textual rotation limits.
func NewRotatingWriterFromConfig(filename string, rc *RotationConfig) (*RotatingWriter, error) {
	maxSize, err := parseSize(rc.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("parse max size: %w", err)
	}

	maxAge, err := parseDuration(rc.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("parse max age: %w", err)
	}

	return NewRotatingWriter(filename, maxSize, maxAge, rc.MaxBackups, rc.Compress)
}

// Write implements io.Writer interface
func (rw *RotatingWriter) Write(p []byte) (n int, err error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.needsRotation() {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}

	n, err = rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the rotating writer
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file != nil {
		err := rw.file.Close()
		rw.file = nil
		return err
	}
	return nil
}

func (rw *RotatingWriter) needsRotation() bool {
	if rw.maxSize > 0 && rw.size >= rw.maxSize {
		return true
	}
	if rw.maxAge > 0 && rw.now().Sub(rw.lastRotate) >= rw.maxAge {
		return true
	}
	return false
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}

	rotated := fmt.Sprintf("%s.%s", rw.filename, rw.now().Format("2006-01-02-15-04-05.000"))
	if err := rw.fs.Rename(rw.filename, rotated); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}

	// Failures below must not lose the live log.
	if rw.compress {
		if err := rw.compressFile(rotated); err != nil {
			fmt.Fprintf(os.Stderr, "compress log file %s: %v\n", rotated, err)
		}
	}
	if err := rw.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "cleanup old log backups: %v\n", err)
	}

	file, err := rw.fs.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create new log file: %w", err)
	}

	rw.file = file
	rw.size = 0
	rw.lastRotate = rw.now()
	return nil
}

func (rw *RotatingWriter) compressFile(filename string) error {
	src, err := rw.fs.Open(filename)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	dst, err := rw.fs.Create(filename + ".gz")
	if err != nil {
		return fmt.Errorf("create compressed file: %w", err)
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		return fmt.Errorf("compress file: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close compressed file: %w", err)
	}

	src.Close()
	if err := rw.fs.Remove(filename); err != nil {
		return fmt.Errorf("remove original file: %w", err)
	}
	return nil
}

type backupFile struct {
	name    string
	modTime time.Time
}

func (rw *RotatingWriter) cleanupOldBackups() error {
	dir := filepath.Dir(rw.filename)
	base := filepath.Base(rw.filename)

	infos, err := rw.fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	var backups []backupFile
	for _, info := range infos {
		if info.IsDir() || !strings.HasPrefix(info.Name(), base+".") {
			continue
		}
		backups = append(backups, backupFile{
			name:    filepath.Join(dir, info.Name()),
			modTime: info.ModTime(),
		})
	}

	if len(backups) <= rw.maxBackups {
		return nil
	}

	// Oldest first; names embed the rotation time so they break ties.
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].name < backups[j].name
		}
		return backups[i].modTime.Before(backups[j].modTime)
	})

	for _, b := range backups[:len(backups)-rw.maxBackups] {
		if err := rw.fs.Remove(b.name); err != nil {
			fmt.Fprintf(os.Stderr, "remove old log backup %s: %v\n", b.name, err)
		}
	}
	return nil
}
