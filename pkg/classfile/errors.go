package classfile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConstantPoolIndex is returned when an index is 0, past the
	// end of the pool, or names the unusable slot after a Long/Double.
	ErrInvalidConstantPoolIndex = errors.New("invalid constant pool index")

	// ErrWrongConstantPoolEntryKind is returned when an entry exists but its
	// tag is not the one the caller asked for.
	ErrWrongConstantPoolEntryKind = errors.New("wrong constant pool entry kind")

	// ErrUnresolvedMember is returned when a class or member reference
	// cannot be bound to a loaded definition.
	ErrUnresolvedMember = errors.New("unresolved member")

	// ErrClassNotFound is returned by class loaders.
	ErrClassNotFound = errors.New("class not found")
)

// IndexError reports a constant pool lookup that missed.
type IndexError struct {
	Index uint16
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("invalid constant pool index %d", e.Index)
}

func (e *IndexError) Unwrap() error { return ErrInvalidConstantPoolIndex }

// KindError reports a constant pool entry with an unexpected tag.
type KindError struct {
	Index uint16
	Want  []uint8
	Got   uint8
}

func (e *KindError) Error() string {
	want := ""
	for i, t := range e.Want {
		if i > 0 {
			want += "|"
		}
		want += TagName(t)
	}
	return fmt.Sprintf("constant pool index %d is %s, want %s", e.Index, TagName(e.Got), want)
}

func (e *KindError) Unwrap() error { return ErrWrongConstantPoolEntryKind }

// UnresolvedMemberError carries the symbolic reference that failed to bind.
// Kind is one of "class", "field" or "method".
type UnresolvedMemberError struct {
	Kind       string
	ClassName  string
	Name       string
	Descriptor string
	Err        error
}

func (e *UnresolvedMemberError) Error() string {
	var s string
	if e.Kind == "class" {
		s = fmt.Sprintf("unresolved class %s", e.ClassName)
	} else {
		s = fmt.Sprintf("unresolved %s %s.%s%s", e.Kind, e.ClassName, e.Name, e.Descriptor)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *UnresolvedMemberError) Is(target error) bool { return target == ErrUnresolvedMember }

func (e *UnresolvedMemberError) Unwrap() error { return e.Err }
