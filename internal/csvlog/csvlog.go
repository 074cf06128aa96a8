// Package csvlog implements append-only CSV log files.
package csvlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// File is an append-only log. Each Append opens, writes and closes the file,
// so external tools may rotate or read it between writes. A log removed by
// rotation is recreated with its header on the next Append.
type File struct {
	path   string
	header string
}

// Open ensures a log exists at path. A new file gets header as its first
// line; an existing file is left untouched.
func Open(path, header string) (*File, error) {
	if err := create(path, header); err != nil {
		return nil, err
	}
	return &File{path: path, header: header}, nil
}

func create(path, header string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, fs.ErrExist):
		return nil
	case err != nil:
		return fmt.Errorf("create log: %w", err)
	}

	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	return nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Append writes line at the end of the file.
func (f *File) Append(line string) error {
	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND, 0)
	if errors.Is(err, fs.ErrNotExist) {
		if err := create(f.path, f.header); err != nil {
			return err
		}
		fh, err = os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND, 0)
	}
	if err != nil {
		return err
	}
	if _, err := fh.WriteString(line); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
