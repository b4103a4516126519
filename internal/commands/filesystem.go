package commands

import (
	"io"
	"os"
)

// File is the writable handle returned by FileSystem.OpenFile.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

// FileSystem is the subset of file operations the commands perform, so tests
// can inject failures.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

type osFileSystem struct{}

func (fs *osFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (fs *osFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (fs *osFileSystem) Remove(name string) error {
	return os.Remove(name)
}
