package objfile

import "n86c/pkg/asm86"

// Segment is one named byte stream of an Object, plus the label offsets
// the assembler recorded inside it (spec.md §4.7/§6: "per segment, a list
// of label offsets").
type Segment struct {
	Name   string
	Stream *Stream
	Origin int
	Labels map[string]int
}

func newSegment(name string) *Segment {
	return &Segment{Name: name, Stream: NewStream(), Labels: map[string]int{}}
}

// Bytes returns the segment's current contents.
func (s *Segment) Bytes() []byte { return s.Stream.Bytes() }

// append writes other's bytes onto the end of s and re-homes other's
// labels to the new base offset.
func (s *Segment) append(other *Segment) {
	base := s.Stream.Size()
	s.Stream.Write(other.Bytes())
	for label, off := range other.Labels {
		s.Labels[label] = base + off
	}
}

// GlobalRef is one exported symbol: its name, the segment it lives in, and
// its byte offset within that segment.
type GlobalRef struct {
	Name    string
	Segment string
	Offset  int
}

// ExternRef is a symbol an Object references but does not define itself.
type ExternRef struct{ Name string }

// Object is spec.md §4.7's virtual object format: an ordered list of named
// segments plus the global and external reference lists the assembler
// populates as it resolves (or fails to resolve) labels.
type Object struct {
	segments map[string]*Segment
	order    []string

	Globals []GlobalRef
	Externs []ExternRef
}

// New returns an empty Object.
func New() *Object {
	return &Object{segments: map[string]*Segment{}}
}

// CreateSegment returns the named segment, creating it (and recording
// declaration order) on first mention.
func (o *Object) CreateSegment(name string) *Segment {
	if seg, ok := o.segments[name]; ok {
		return seg
	}
	seg := newSegment(name)
	o.segments[name] = seg
	o.order = append(o.order, name)
	return seg
}

// GetSegment returns the named segment, if it has been created.
func (o *Object) GetSegment(name string) (*Segment, bool) {
	seg, ok := o.segments[name]
	return seg, ok
}

// Segments returns every segment in declaration order.
func (o *Object) Segments() []*Segment {
	segs := make([]*Segment, len(o.order))
	for i, name := range o.order {
		segs[i] = o.segments[name]
	}
	return segs
}

// RegisterGlobalReference records a symbol segment/name exports at offset,
// creating the segment first if it does not exist yet.
func (o *Object) RegisterGlobalReference(segment, name string, offset int) {
	o.CreateSegment(segment)
	o.Globals = append(o.Globals, GlobalRef{Name: name, Segment: segment, Offset: offset})
}

// RegisterExternalReference records a symbol this object needs but does
// not define, deduplicating against any reference already recorded.
func (o *Object) RegisterExternalReference(name string) {
	for _, e := range o.Externs {
		if e.Name == name {
			return
		}
	}
	o.Externs = append(o.Externs, ExternRef{Name: name})
}

// Append merges other into o: each of other's segments is concatenated
// onto the same-named segment in o (creating it if new), global references
// are carried forward with their offsets shifted by the base each target
// segment had before the merge, and external references are merged with
// externs that other's globals newly satisfy dropped. No symbol is
// renamed: a global name defined in both objects is kept once per
// definition.
func (o *Object) Append(other *Object) {
	baseOf := map[string]int{}
	for _, name := range other.order {
		dst := o.CreateSegment(name)
		baseOf[name] = dst.Stream.Size()
		dst.append(other.segments[name])
	}

	for _, g := range other.Globals {
		o.Globals = append(o.Globals, GlobalRef{Name: g.Name, Segment: g.Segment, Offset: baseOf[g.Segment] + g.Offset})
	}

	satisfied := map[string]bool{}
	for _, g := range other.Globals {
		satisfied[g.Name] = true
	}
	for _, g := range o.Globals {
		satisfied[g.Name] = true
	}
	kept := o.Externs[:0]
	for _, e := range o.Externs {
		if !satisfied[e.Name] {
			kept = append(kept, e)
		}
	}
	o.Externs = kept
	for _, e := range other.Externs {
		if !satisfied[e.Name] {
			o.RegisterExternalReference(e.Name)
		}
	}
}

// FromAssemblerOutputs builds an Object directly from one assembler run's
// SegmentOutput list (pkg/asm86.Assembler.Assemble's return value),
// translating each segment's relocations into external references when
// the assembler could not resolve them within the run (an unresolved
// relocation against a name the object itself does not export anywhere).
func FromAssemblerOutputs(outputs []asm86.SegmentOutput) *Object {
	obj := New()

	exported := map[string]bool{}
	for _, out := range outputs {
		for _, name := range out.Globals {
			exported[name] = true
		}
	}

	for _, out := range outputs {
		seg := obj.CreateSegment(out.Name)
		seg.Stream.Write(out.Bytes)
		for label, offset := range out.Labels {
			seg.Labels[label] = offset
		}
		for _, name := range out.Globals {
			offset, ok := out.Labels[name]
			if !ok {
				offset = 0
			}
			obj.RegisterGlobalReference(out.Name, name, offset)
		}
		for _, reloc := range out.Relocations {
			if !exported[reloc.Symbol] {
				obj.RegisterExternalReference(reloc.Symbol)
			}
		}
	}
	return obj
}
