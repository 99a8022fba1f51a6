package ical

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

var spoolSeq atomic.Uint64

// Spool writes attachment files into a temporary directory. Files are
// handed over to the caller, who removes them once sent.
type Spool struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewSpool returns a spool writing into dir on fs.
func NewSpool(fs afero.Fs, dir string) *Spool {
	return &Spool{fs: fs, dir: dir, now: time.Now}
}

// Dir returns the directory files are written to.
func (s *Spool) Dir() string {
	return s.dir
}

// Write stores content in a new file and returns its path. The name is a hash
// of the content, the current time and a process-wide sequence number, and the
// file is created exclusively, so concurrent writes never share a file.
func (s *Spool) Write(content string) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrStorage, s.dir, err)
	}

	name := spoolName(content, s.now(), spoolSeq.Add(1))
	path := filepath.Join(s.dir, name)

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrStorage, path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("%w: write %s: %w", ErrStorage, path, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("%w: close %s: %w", ErrStorage, path, err)
	}
	return path, nil
}

// Open opens a file previously returned by Write.
func (s *Spool) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Remove deletes a file previously returned by Write.
func (s *Spool) Remove(path string) error {
	return s.fs.Remove(path)
}

func spoolName(content string, now time.Time, seq uint64) string {
	h := md5.New()
	h.Write([]byte(content))
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	h.Write([]byte(strconv.FormatUint(seq, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
