package asm86

import "fmt"

// SegmentOutput is one assembled segment: its bytes, outstanding
// relocations against symbols defined elsewhere (another segment or an
// external object), and the names it exports.
type SegmentOutput struct {
	Name        string
	Bytes       []byte
	Relocations []Relocation
	Globals     []string
	// Labels carries every label's resolved offset within this segment
	// (pass 1's LabelTable), so a consumer building an object file (e.g.
	// pkg/objfile) can record a global reference's offset without
	// re-deriving it from the Program a second time.
	Labels LabelTable
}

// Assembler collects named segments (in declaration order) and assembles
// all of them together so that a label defined in one segment can be
// referenced from another, per spec.md §4.6's two-pass model extended
// across a whole object: pass 1 runs once per segment to build every
// label table before pass 2 resolves any reference.
type Assembler struct {
	order    []string
	segments map[string]Program
}

func NewAssembler() *Assembler {
	return &Assembler{segments: map[string]Program{}}
}

// AddSegment appends prog to the named segment, creating it if this is its
// first mention (so a segment built across repeated `segment X` directives
// in source still assembles as one unit).
func (a *Assembler) AddSegment(name string, prog Program) {
	if _, ok := a.segments[name]; !ok {
		a.order = append(a.order, name)
	}
	a.segments[name] = append(a.segments[name], prog...)
}

// Assemble runs pass 1 over every segment, then pass 2 over every segment
// against the combined symbol view, returning one SegmentOutput per
// segment in the order segments were first added.
func (a *Assembler) Assemble() ([]SegmentOutput, error) {
	tables := map[string]LabelTable{}
	externs := map[string]bool{}
	globalsBySegment := map[string][]string{}

	for _, name := range a.order {
		table, _, err := SizePass(a.segments[name])
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", name, err)
		}
		tables[name] = table

		for _, ins := range a.segments[name] {
			switch v := ins.(type) {
			case ExternDecl:
				externs[v.Name] = true
			case GlobalDecl:
				globalsBySegment[name] = append(globalsBySegment[name], v.Name)
			}
		}
	}

	if err := checkCrossSegmentCollisions(tables); err != nil {
		return nil, err
	}

	resolve := func(label string) (segment string, offset int, found bool) {
		for _, name := range a.order {
			if off, ok := tables[name][label]; ok {
				return name, off, true
			}
		}
		return "", 0, false
	}

	outputs := make([]SegmentOutput, 0, len(a.order))
	for _, name := range a.order {
		bytes, relocs, err := CodePass(name, a.segments[name], resolve, externs)
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", name, err)
		}
		outputs = append(outputs, SegmentOutput{
			Name:        name,
			Bytes:       bytes,
			Relocations: relocs,
			Globals:     globalsBySegment[name],
			Labels:      tables[name],
		})
	}
	return outputs, nil
}

// checkCrossSegmentCollisions rejects a label defined in more than one
// segment: the resolver above returns the first match in declaration
// order, which would silently shadow an ambiguous duplicate otherwise.
func checkCrossSegmentCollisions(tables map[string]LabelTable) error {
	owner := map[string]string{}
	for segment, table := range tables {
		for label := range table {
			if prior, ok := owner[label]; ok && prior != segment {
				return fmt.Errorf("label %q defined in both segment %q and %q", label, prior, segment)
			}
			owner[label] = segment
		}
	}
	return nil
}
