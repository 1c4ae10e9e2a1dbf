package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

// DirClassLoader loads classes from a class path directory, delegating to
// the parent first.
type DirClassLoader struct {
	Dir    string
	Parent classfile.ClassLoader
	cache  cache
}

// NewDirClassLoader creates a loader for dir. parent may be nil.
func NewDirClassLoader(dir string, parent classfile.ClassLoader) *DirClassLoader {
	return &DirClassLoader{Dir: dir, Parent: parent}
}

func (cl *DirClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.cache.get(name); ok {
		return cf, nil
	}
	if cl.Parent != nil {
		cf, err := cl.Parent.LoadClass(name)
		if err == nil {
			return cf, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}

	path := filepath.Join(cl.Dir, filepath.FromSlash(name)+".class")
	log.Debugf("loading %s from %s", name, path)
	cf, err := classfile.ParseFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name, cl.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("dir: parsing %s: %w", path, err)
	}
	return cl.cache.put(name, cf), nil
}
