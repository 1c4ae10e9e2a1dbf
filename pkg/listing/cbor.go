package listing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/daimatz/jvmcode/pkg/bytecode"
	"github.com/daimatz/jvmcode/pkg/pipeline"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("listing: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Document is the CBOR export of a decoded class.
type Document struct {
	Class   string   `cbor:"1,keyasint"`
	Methods []Method `cbor:"2,keyasint"`
}

// Method is one method of a Document. Error is set instead of
// Instructions when the method failed to decode.
type Method struct {
	Name         string        `cbor:"1,keyasint"`
	Descriptor   string        `cbor:"2,keyasint"`
	Instructions []Instruction `cbor:"3,keyasint,omitempty"`
	Handlers     []Handler     `cbor:"4,keyasint,omitempty"`
	Error        string        `cbor:"5,keyasint,omitempty"`
}

// Instruction carries operands in their text form. Branch and switch
// targets are also listed as offsets, default first.
type Instruction struct {
	Offset   int      `cbor:"1,keyasint"`
	Opcode   string   `cbor:"2,keyasint"`
	Wide     bool     `cbor:"3,keyasint,omitempty"`
	Operands []string `cbor:"4,keyasint,omitempty"`
	Targets  []int    `cbor:"5,keyasint,omitempty"`
	Line     int      `cbor:"6,keyasint,omitempty"`
}

// Handler is an exception table row. End equals the code length when the
// range runs to the end; an empty CatchType catches everything.
type Handler struct {
	Start     int    `cbor:"1,keyasint"`
	End       int    `cbor:"2,keyasint"`
	Handler   int    `cbor:"3,keyasint"`
	CatchType string `cbor:"4,keyasint,omitempty"`
}

// NewMethod converts a decoded body.
func NewMethod(body *bytecode.Body) Method {
	m := Method{
		Name:         body.Method.Name,
		Descriptor:   body.Method.Descriptor,
		Instructions: make([]Instruction, len(body.Instructions)),
	}
	for i := range body.Instructions {
		ins := &body.Instructions[i]
		out := Instruction{
			Offset:   ins.Offset,
			Opcode:   ins.Opcode.String(),
			Wide:     ins.Wide,
			Operands: operands(ins),
			Line:     ins.Line,
		}
		for _, t := range body.Targets(ins) {
			out.Targets = append(out.Targets, t.Offset)
		}
		m.Instructions[i] = out
	}
	for _, h := range body.Handlers {
		row := Handler{Start: h.Start.Offset, End: body.CodeLength, Handler: h.Handler.Offset}
		if h.End != nil {
			row.End = h.End.Offset
		}
		if h.CatchType != nil {
			row.CatchType = h.CatchType.Name()
		}
		m.Handlers = append(m.Handlers, row)
	}
	return m
}

// NewDocument converts the result of decoding a class.
func NewDocument(result *pipeline.ClassResult) *Document {
	d := &Document{Class: result.Name, Methods: make([]Method, len(result.Methods))}
	for i, r := range result.Methods {
		if r.Err != nil {
			d.Methods[i] = FailedMethod(r.Method.Name, r.Method.Descriptor, r.Err)
			continue
		}
		d.Methods[i] = NewMethod(r.Body)
	}
	return d
}

// FailedMethod records a method that did not decode.
func FailedMethod(name, descriptor string, err error) Method {
	return Method{Name: name, Descriptor: descriptor, Error: err.Error()}
}

// MarshalDocument serializes d to canonical CBOR.
func MarshalDocument(d *Document) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDocument deserializes a Document from CBOR bytes.
func UnmarshalDocument(data []byte) (*Document, error) {
	var d Document
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("listing: unmarshal document: %w", err)
	}
	return &d, nil
}
