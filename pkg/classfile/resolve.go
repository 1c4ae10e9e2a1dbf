package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// ClassLoader loads class definitions by internal name ("java/lang/String").
// Implementations return an error wrapping ErrClassNotFound for unknown names
// and must behave as a pure lookup.
type ClassLoader interface {
	LoadClass(name string) (*ClassFile, error)
}

func loadClass(loader ClassLoader, name string) (*ClassFile, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: %s (no class loader)", ErrClassNotFound, name)
	}
	return loader.LoadClass(name)
}

// declaringClass loads the class a member reference names. Members of array
// types live on java/lang/Object.
func declaringClass(loader ClassLoader, r *memberRef) (*ClassFile, error) {
	name := r.ClassName()
	if strings.HasPrefix(name, "[") {
		name = ObjectClassName
	}
	return loadClass(loader, name)
}

func superClass(loader ClassLoader, cf *ClassFile) (*ClassFile, error) {
	name := cf.SuperClassName()
	if name == "" {
		return nil, nil
	}
	return loadClass(loader, name)
}

func resolveField(loader ClassLoader, r *memberRef) (*FieldInfo, error) {
	cf, err := declaringClass(loader, r)
	if err != nil {
		return nil, r.unresolved("field", err)
	}
	name, desc := r.Name(), r.Descriptor()
	for cf != nil {
		if f := cf.FindField(name, desc); f != nil {
			return f, nil
		}
		if cf, err = superClass(loader, cf); err != nil {
			return nil, r.unresolved("field", err)
		}
	}
	return nil, r.unresolved("field", nil)
}

func resolveMethod(loader ClassLoader, r *memberRef) (*MethodInfo, error) {
	cf, err := declaringClass(loader, r)
	if err != nil {
		return nil, r.unresolved("method", err)
	}
	name, desc := r.Name(), r.Descriptor()

	// A superclass the loader does not know ends the walk. Interfaces of
	// the classes already visited are still searched.
	var chain []*ClassFile
	var missing error
	for cf != nil {
		if m := cf.FindMethod(name, desc); m != nil {
			return m, nil
		}
		chain = append(chain, cf)
		if cf, err = superClass(loader, cf); err != nil {
			if !errors.Is(err, ErrClassNotFound) {
				return nil, r.unresolved("method", err)
			}
			missing = err
			break
		}
	}

	// Interfaces of the class and of every superclass, nearest first.
	seen := make(map[string]bool)
	var queue []string
	for _, c := range chain {
		queue = append(queue, c.InterfaceNames()...)
	}
	for len(queue) > 0 {
		iname := queue[0]
		queue = queue[1:]
		if seen[iname] {
			continue
		}
		seen[iname] = true
		iface, err := loadClass(loader, iname)
		if err != nil {
			return nil, r.unresolved("method", err)
		}
		if !iface.IsInterface() {
			return nil, r.unresolved("method", fmt.Errorf("%s is not an interface", iname))
		}
		if m := iface.FindMethod(name, desc); m != nil {
			return m, nil
		}
		queue = append(queue, iface.InterfaceNames()...)
	}
	return nil, r.unresolved("method", missing)
}
