package loader

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

// jmodMagic prefixes the zip data of a jmod file.
var jmodMagic = []byte("JM\x01\x00")

// ArchiveClassLoader loads classes from a jar or jmod file. The archive is
// read and indexed on first use.
type ArchiveClassLoader struct {
	Path string

	prefix string // entry name prefix of class files
	jmod   bool

	openOnce sync.Once
	openErr  error
	entries  map[string]*zip.File
	cache    cache
}

// NewJarClassLoader creates a loader for a jar file.
func NewJarClassLoader(path string) *ArchiveClassLoader {
	return &ArchiveClassLoader{Path: path}
}

// NewJmodClassLoader creates a loader for a JDK jmod file such as
// java.base.jmod.
func NewJmodClassLoader(path string) *ArchiveClassLoader {
	return &ArchiveClassLoader{Path: path, prefix: "classes/", jmod: true}
}

func (cl *ArchiveClassLoader) open() error {
	cl.openOnce.Do(func() {
		data, err := os.ReadFile(cl.Path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Warningf("archive %s does not exist", cl.Path)
			cl.openErr = fmt.Errorf("%w: archive %s: %w", classfile.ErrClassNotFound, cl.Path, err)
			return
		}
		if err != nil {
			cl.openErr = fmt.Errorf("archive: reading %s: %w", cl.Path, err)
			return
		}
		if cl.jmod {
			if !bytes.HasPrefix(data, jmodMagic) {
				cl.openErr = fmt.Errorf("archive: %s is not a jmod file", cl.Path)
				return
			}
			data = data[len(jmodMagic):]
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			cl.openErr = fmt.Errorf("archive: opening zip %s: %w", cl.Path, err)
			return
		}
		cl.entries = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			if name, ok := strings.CutPrefix(f.Name, cl.prefix); ok && strings.HasSuffix(name, ".class") {
				cl.entries[strings.TrimSuffix(name, ".class")] = f
			}
		}
		log.Debugf("indexed %d classes in %s", len(cl.entries), cl.Path)
	})
	return cl.openErr
}

// ClassNames lists every class in the archive in sorted order.
func (cl *ArchiveClassLoader) ClassNames() ([]string, error) {
	if err := cl.open(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cl.entries))
	for name := range cl.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (cl *ArchiveClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := cl.cache.get(name); ok {
		return cf, nil
	}
	if err := cl.open(); err != nil {
		return nil, err
	}
	f, ok := cl.entries[name]
	if !ok {
		return nil, notFound(name, cl.Path)
	}

	log.Debugf("loading %s from %s", name, cl.Path)
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", f.Name, err)
	}
	defer rc.Close()
	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: parsing %s: %w", name, err)
	}
	return cl.cache.put(name, cf), nil
}
