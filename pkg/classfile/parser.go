package classfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(bufio.NewReader(f))
}

// ParseBytes parses an in-memory .class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var header struct {
		Magic        uint32
		MinorVersion uint16
		MajorVersion uint16
		PoolCount    uint16
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if header.Magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", header.Magic)
	}
	cf.MinorVersion = header.MinorVersion
	cf.MajorVersion = header.MajorVersion

	pool, err := parseConstantPool(r, header.PoolCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	var classInfo struct {
		AccessFlags uint16
		ThisClass   uint16
		SuperClass  uint16
		Interfaces  uint16
	}
	if err := binary.Read(r, binary.BigEndian, &classInfo); err != nil {
		return nil, fmt.Errorf("reading class info: %w", err)
	}
	cf.AccessFlags = classInfo.AccessFlags
	cf.ThisClass = classInfo.ThisClass
	cf.SuperClass = classInfo.SuperClass
	if _, err := pool.Class(cf.ThisClass); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if cf.SuperClass != 0 {
		if _, err := pool.Class(cf.SuperClass); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	cf.Interfaces = make([]uint16, classInfo.Interfaces)
	if err := binary.Read(r, binary.BigEndian, cf.Interfaces); err != nil {
		return nil, fmt.Errorf("reading interfaces: %w", err)
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, pool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, pool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	if err := cf.parseClassAttributes(r); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	for i := range cf.Fields {
		cf.Fields[i].DeclaringClass = cf
	}
	for i := range cf.Methods {
		cf.Methods[i].DeclaringClass = cf
	}
	return cf, nil
}

// memberHeader is the fixed prefix shared by field_info and method_info.
type memberHeader struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	AttributesCount uint16
}

func readMember(r io.Reader, pool ConstantPool) (memberHeader, string, string, []AttributeInfo, error) {
	var h memberHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return h, "", "", nil, err
	}
	name, err := pool.Utf8(h.NameIndex)
	if err != nil {
		return h, "", "", nil, fmt.Errorf("name: %w", err)
	}
	desc, err := pool.Utf8(h.DescriptorIndex)
	if err != nil {
		return h, "", "", nil, fmt.Errorf("descriptor: %w", err)
	}
	attrs, err := parseAttributeInfos(r, pool, h.AttributesCount)
	if err != nil {
		return h, "", "", nil, err
	}
	return h, name, desc, attrs, nil
}

func parseFields(r io.Reader, pool ConstantPool, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := range fields {
		h, name, desc, attrs, err := readMember(r, pool)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		if _, err := ParseFieldDescriptor(desc); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[i] = FieldInfo{
			AccessFlags: h.AccessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool ConstantPool, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := range methods {
		h, name, desc, attrs, err := readMember(r, pool)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		sig, err := ParseMethodDescriptor(desc)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}

		m := MethodInfo{
			AccessFlags: h.AccessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
			signature:   sig,
		}
		for _, attr := range attrs {
			if attr.Name == "Code" {
				code, err := parseCodeAttribute(attr.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s%s: %w", name, desc, err)
				}
				m.Code = code
				break
			}
		}
		methods[i] = m
	}
	return methods, nil
}

func parseAttributeInfos(r io.Reader, pool ConstantPool, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := range attrs {
		var h struct {
			NameIndex uint16
			Length    uint32
		}
		if err := binary.Read(r, binary.BigEndian, &h); err != nil {
			return nil, fmt.Errorf("reading attribute %d header: %w", i, err)
		}
		data := make([]byte, h.Length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}
		name, err := pool.Utf8(h.NameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool ConstantPool) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if uint64(len(data)) < 8+uint64(codeLength)+2 {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	r := bytes.NewReader(data[8+codeLength:])
	var exTableLen uint16
	if err := binary.Read(r, binary.BigEndian, &exTableLen); err != nil {
		return nil, fmt.Errorf("reading exception table length: %w", err)
	}
	handlers := make([]ExceptionHandler, exTableLen)
	if err := binary.Read(r, binary.BigEndian, handlers); err != nil {
		return nil, fmt.Errorf("reading exception table: %w", err)
	}

	var attrCount uint16
	if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return nil, fmt.Errorf("reading Code attributes count: %w", err)
	}
	attrs, err := parseAttributeInfos(r, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("parsing Code attributes: %w", err)
	}

	ca := &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}
	for _, attr := range attrs {
		if attr.Name != "LineNumberTable" {
			continue
		}
		lines, err := parseLineNumberTable(attr.Data)
		if err != nil {
			return nil, err
		}
		ca.LineNumbers = append(ca.LineNumbers, lines...)
	}
	return ca, nil
}

func parseLineNumberTable(data []byte) (LineNumberTable, error) {
	r := bytes.NewReader(data)
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading LineNumberTable length: %w", err)
	}
	lines := make(LineNumberTable, n)
	if err := binary.Read(r, binary.BigEndian, lines); err != nil {
		return nil, fmt.Errorf("reading LineNumberTable: %w", err)
	}
	return lines, nil
}

func (cf *ClassFile) parseClassAttributes(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	attrs, err := parseAttributeInfos(r, cf.ConstantPool, count)
	if err != nil {
		return err
	}
	for _, attr := range attrs {
		switch attr.Name {
		case "SourceFile":
			if len(attr.Data) != 2 {
				return fmt.Errorf("SourceFile attribute has %d bytes", len(attr.Data))
			}
			cf.SourceFile, err = cf.ConstantPool.Utf8(binary.BigEndian.Uint16(attr.Data))
			if err != nil {
				return fmt.Errorf("SourceFile: %w", err)
			}
		case "BootstrapMethods":
			cf.BootstrapMethods, err = parseBootstrapMethods(attr.Data)
			if err != nil {
				return fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		}
	}
	return nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("BootstrapMethods data too short")
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated at method %d", i)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		if offset+2*int(numArgs) > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated in arguments of method %d", i)
		}
		args := make([]uint16, numArgs)
		for j := range args {
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}
