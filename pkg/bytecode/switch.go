package bytecode

import (
	"fmt"
	"strings"
)

// LookupPair is one match/offset row of a lookupswitch as read from the code.
type LookupPair struct {
	Match  int32
	Offset BranchOffset
}

// LookupSwitchData is the unresolved payload of lookupswitch.
type LookupSwitchData struct {
	Default BranchOffset
	Pairs   []LookupPair
}

func (*LookupSwitchData) operand() {}

func (s *LookupSwitchData) Resolve(body *Body, from *Instruction) (Operand, error) {
	def, err := s.Default.target(body, from)
	if err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	out := &LookupSwitch{Default: def, Cases: make([]LookupCase, len(s.Pairs))}
	for i, p := range s.Pairs {
		t, err := p.Offset.target(body, from)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", p.Match, err)
		}
		out.Cases[i] = LookupCase{Match: p.Match, Target: t}
	}
	return out, nil
}

// LookupCase maps one match value to its target.
type LookupCase struct {
	Match  int32
	Target *Instruction
}

// LookupSwitch is a resolved lookupswitch. Cases keep the order of the
// code array.
type LookupSwitch struct {
	Default *Instruction
	Cases   []LookupCase
}

func (*LookupSwitch) operand() {}

// TargetFor returns the instruction control reaches for key.
func (s *LookupSwitch) TargetFor(key int32) *Instruction {
	for _, c := range s.Cases {
		if c.Match == key {
			return c.Target
		}
	}
	return s.Default
}

func (s *LookupSwitch) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for _, c := range s.Cases {
		fmt.Fprintf(&sb, "%d: %d, ", c.Match, c.Target.Offset)
	}
	fmt.Fprintf(&sb, "default: %d}", s.Default.Offset)
	return sb.String()
}

// TableSwitchData is the unresolved payload of tableswitch. Offsets holds
// High-Low+1 entries.
type TableSwitchData struct {
	Default   BranchOffset
	Low, High int32
	Offsets   []BranchOffset
}

func (*TableSwitchData) operand() {}

func (s *TableSwitchData) Resolve(body *Body, from *Instruction) (Operand, error) {
	def, err := s.Default.target(body, from)
	if err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	out := &TableSwitch{Default: def, Low: s.Low, High: s.High, Targets: make([]*Instruction, len(s.Offsets))}
	for i, o := range s.Offsets {
		if out.Targets[i], err = o.target(body, from); err != nil {
			return nil, fmt.Errorf("case %d: %w", int64(s.Low)+int64(i), err)
		}
	}
	return out, nil
}

// TableSwitch is a resolved tableswitch; Targets[i] handles key Low+i.
type TableSwitch struct {
	Default   *Instruction
	Low, High int32
	Targets   []*Instruction
}

func (*TableSwitch) operand() {}

// TargetFor returns the instruction control reaches for key.
func (s *TableSwitch) TargetFor(key int32) *Instruction {
	if key < s.Low || key > s.High {
		return s.Default
	}
	return s.Targets[int64(key)-int64(s.Low)]
}

func (s *TableSwitch) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, t := range s.Targets {
		fmt.Fprintf(&sb, "%d: %d, ", int64(s.Low)+int64(i), t.Offset)
	}
	fmt.Fprintf(&sb, "default: %d}", s.Default.Offset)
	return sb.String()
}
