// Package loader provides class loaders that find class files in
// directories, jar and jmod archives, and memory.
package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

var log = commonlog.GetLogger("jvmcode.loader")

// cache holds parsed classes by internal name. Loaders are shared by
// concurrent decodes.
type cache struct {
	mu      sync.Mutex
	classes map[string]*classfile.ClassFile
}

func (c *cache) get(name string) (*classfile.ClassFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cf, ok := c.classes[name]
	return cf, ok
}

// put stores cf unless another goroutine got there first, and returns the
// stored class so every caller sees the same definition.
func (c *cache) put(name string, cf *classfile.ClassFile) *classfile.ClassFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.classes == nil {
		c.classes = make(map[string]*classfile.ClassFile)
	}
	if prev, ok := c.classes[name]; ok {
		return prev
	}
	c.classes[name] = cf
	return cf
}

func notFound(name, where string) error {
	return fmt.Errorf("%w: %s in %s", classfile.ErrClassNotFound, name, where)
}

// IsNotFound reports whether err means the class does not exist, as
// opposed to a class that exists but could not be read.
func IsNotFound(err error) bool {
	return errors.Is(err, classfile.ErrClassNotFound)
}

// ChainClassLoader asks each loader in turn and returns the first class
// found. Errors other than not-found stop the search.
type ChainClassLoader struct {
	Loaders []classfile.ClassLoader
}

// Chain returns a loader searching loaders in order. Nil loaders are skipped.
func Chain(loaders ...classfile.ClassLoader) *ChainClassLoader {
	c := &ChainClassLoader{}
	for _, l := range loaders {
		if l != nil {
			c.Loaders = append(c.Loaders, l)
		}
	}
	return c
}

func (c *ChainClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	for _, l := range c.Loaders {
		cf, err := l.LoadClass(name)
		if err == nil {
			return cf, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, notFound(name, "class path")
}

// MemoryClassLoader serves classes that are already parsed.
type MemoryClassLoader struct {
	classes cache
}

// NewMemoryClassLoader returns a loader holding classes.
func NewMemoryClassLoader(classes ...*classfile.ClassFile) (*MemoryClassLoader, error) {
	l := &MemoryClassLoader{}
	for _, cf := range classes {
		if err := l.Add(cf); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add registers cf under its own name.
func (l *MemoryClassLoader) Add(cf *classfile.ClassFile) error {
	name, err := cf.ClassName()
	if err != nil {
		return err
	}
	l.classes.put(name, cf)
	return nil
}

func (l *MemoryClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := l.classes.get(name); ok {
		return cf, nil
	}
	return nil, notFound(name, "memory")
}
