package classfile

// Access flags
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccBridge       = 0x0040
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccSynthetic    = 0x1000
)

// ClassFile represents a parsed .class file.
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ConstantPool     ConstantPool
	AccessFlags      uint16
	ThisClass        uint16
	SuperClass       uint16
	Interfaces       []uint16
	Fields           []FieldInfo
	Methods          []MethodInfo
	SourceFile       string
	BootstrapMethods []BootstrapMethod
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return cf.ConstantPool.ClassName(cf.ThisClass)
}

// SuperClassName returns the fully qualified name of the super class.
// Returns "" if this is java/lang/Object (SuperClass == 0).
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := cf.ConstantPool.ClassName(cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// InterfaceNames returns the directly implemented interfaces in declaration order.
func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		if name, err := cf.ConstantPool.ClassName(idx); err == nil {
			names = append(names, name)
		}
	}
	return names
}

func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags&AccInterface != 0 }

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name and descriptor.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name && cf.Fields[i].Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}

// MethodInfo represents a method in a class file.
type MethodInfo struct {
	AccessFlags    uint16
	Name           string
	Descriptor     string
	Attributes     []AttributeInfo
	Code           *CodeAttribute
	DeclaringClass *ClassFile

	signature *MethodDescriptor
}

// NewMethodInfo builds a method outside of a parsed class, validating its descriptor.
func NewMethodInfo(accessFlags uint16, name, descriptor string) (*MethodInfo, error) {
	sig, err := ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	return &MethodInfo{AccessFlags: accessFlags, Name: name, Descriptor: descriptor, signature: sig}, nil
}

func (m *MethodInfo) IsStatic() bool   { return m.AccessFlags&AccStatic != 0 }
func (m *MethodInfo) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }
func (m *MethodInfo) IsNative() bool   { return m.AccessFlags&AccNative != 0 }

// HasThis reports whether local slot 0 holds the receiver.
func (m *MethodInfo) HasThis() bool { return !m.IsStatic() }

// Signature returns the parsed descriptor.
func (m *MethodInfo) Signature() (*MethodDescriptor, error) {
	if m.signature != nil {
		return m.signature, nil
	}
	return ParseMethodDescriptor(m.Descriptor)
}

// ParameterSlots is the number of local slots taken by the receiver and
// the parameters. Methods from Parse or NewMethodInfo always have a valid
// descriptor; for anything else an unparsable one counts as no parameters.
func (m *MethodInfo) ParameterSlots() int {
	n := 0
	if m.HasThis() {
		n = 1
	}
	if sig, err := m.Signature(); err == nil {
		n += sig.ParameterSlots()
	}
	return n
}

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags    uint16
	Name           string
	Descriptor     string
	Attributes     []AttributeInfo
	DeclaringClass *ClassFile
}

func (f *FieldInfo) IsStatic() bool { return f.AccessFlags&AccStatic != 0 }

// AttributeInfo represents a raw attribute.
type AttributeInfo struct {
	Name string
	Data []byte
}

// ExceptionHandler represents an entry in the exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// LineNumberEntry maps the instructions from StartPC on to a source line.
type LineNumberEntry struct {
	StartPC uint16
	Line    uint16
}

// LineNumberTable is the contents of one or more LineNumberTable attributes.
type LineNumberTable []LineNumberEntry

// LineAt returns the line of the entry with the greatest StartPC not past offset.
func (t LineNumberTable) LineAt(offset int) (int, bool) {
	best := -1
	for i, e := range t {
		if int(e.StartPC) > offset {
			continue
		}
		if best < 0 || e.StartPC > t[best].StartPC {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return int(t[best].Line), true
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	LineNumbers       LineNumberTable
	Attributes        []AttributeInfo
}

// BootstrapMethod is one entry of the BootstrapMethods class attribute.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}
