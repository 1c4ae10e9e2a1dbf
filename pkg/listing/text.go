// Package listing renders decoded method bodies for people and for tools.
package listing

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/daimatz/jvmcode/pkg/bytecode"
)

// WriteText writes a disassembly of body: one instruction per line with
// its offset, mnemonic, operands and source line, then the exception table.
func WriteText(w io.Writer, body *bytecode.Body) error {
	m := body.Method
	if _, err := fmt.Fprintf(w, "%s%s\n", m.Name, m.Descriptor); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for i := range body.Instructions {
		ins := &body.Instructions[i]
		fmt.Fprintf(tw, "  %d:\t%s\t%s", ins.Offset, mnemonic(ins), strings.Join(operands(ins), " "))
		if ins.Line > 0 {
			fmt.Fprintf(tw, "\t// line %d", ins.Line)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(body.Handlers) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "  exception table:"); err != nil {
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, h := range body.Handlers {
		fmt.Fprintf(tw, "    %d\t%s\t%d\t%s\n", h.Start.Offset, endOffset(body, h), h.Handler.Offset, catchType(h))
	}
	return tw.Flush()
}

func mnemonic(ins *bytecode.Instruction) string {
	if ins.Wide {
		return "wide " + ins.Opcode.String()
	}
	return ins.Opcode.String()
}

func operands(ins *bytecode.Instruction) []string {
	var out []string
	for _, op := range []bytecode.Operand{ins.Operand, ins.Operand2} {
		if op != nil {
			out = append(out, fmt.Sprint(op))
		}
	}
	return out
}

func endOffset(body *bytecode.Body, h bytecode.ExceptionHandler) string {
	if h.End == nil {
		return fmt.Sprint(body.CodeLength)
	}
	return fmt.Sprint(h.End.Offset)
}

func catchType(h bytecode.ExceptionHandler) string {
	if h.CatchType == nil {
		return "any"
	}
	return h.CatchType.Name()
}
