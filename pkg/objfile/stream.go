// Package objfile implements the virtual object format of spec.md §4.7: a
// container of named byte-segment streams plus the global/external symbol
// reference lists the assembler populates as it resolves labels.
//
// Grounded on spec.md §5's "Streams" design note: a stream is a sequential
// byte buffer that can be joined to a parent so writes to it propagate
// there too, and split into
// two views that each remain joined to the original. Most of this package's
// traffic never needs joining (a Segment just owns its own Stream), so
// Join/Split are exercised deliberately rather than on every write — see
// stream_test.go. Object.Append does not use them: it copies the other
// object's bytes with a plain Write.
package objfile

import "fmt"

// Stream is a sequential byte buffer that can be joined to zero or more
// parent streams: any write to this stream is replayed, at a fixed offset,
// into every joined parent. Join edges only ever point from a newly
// created stream to an already-existing one, so the join graph can never
// cycle back to a stream that is still under construction.
type Stream struct {
	buf     []byte
	parents []joinEdge
}

type joinEdge struct {
	parent *Stream
	offset int
}

// NewStream returns an empty, unjoined Stream.
func NewStream() *Stream { return &Stream{} }

// Size reports the stream's current length in bytes.
func (s *Stream) Size() int { return len(s.buf) }

// Bytes returns the stream's contents. Callers must not mutate the
// returned slice.
func (s *Stream) Bytes() []byte { return s.buf }

// Write appends p to the stream and propagates the write to every joined
// parent at its corresponding offset.
func (s *Stream) Write(p []byte) (int, error) {
	offset := len(s.buf)
	s.buf = append(s.buf, p...)
	s.propagate(offset, p)
	return len(p), nil
}

// WriteAt overwrites length len(p) at offset, zero-extending the stream
// first if offset+len(p) runs past the current end, then propagates the
// write to every joined parent.
func (s *Stream) WriteAt(offset int, p []byte) error {
	if offset < 0 {
		return fmt.Errorf("objfile: negative stream offset %d", offset)
	}
	need := offset + len(p)
	if need > len(s.buf) {
		s.buf = append(s.buf, make([]byte, need-len(s.buf))...)
	}
	copy(s.buf[offset:], p)
	s.propagate(offset, p)
	return nil
}

// Read returns the length bytes starting at offset.
func (s *Stream) Read(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(s.buf) {
		return nil, fmt.Errorf("objfile: read [%d:%d] out of range for a %d-byte stream", offset, offset+length, len(s.buf))
	}
	return s.buf[offset : offset+length], nil
}

func (s *Stream) propagate(offset int, p []byte) {
	for _, e := range s.parents {
		e.parent.WriteAt(e.offset+offset, p)
	}
}

// Join registers parent as a propagation target: every future write to s
// is replayed into parent starting at offsetInParent. A stream may be
// joined to any number of parents, and a stream may have any number of
// children joined to it, forming a DAG rooted at whichever streams nothing
// is joined to.
func (s *Stream) Join(parent *Stream, offsetInParent int) {
	s.parents = append(s.parents, joinEdge{parent: parent, offset: offsetInParent})
}

// Split carves s into two new streams, head holding s's first at bytes and
// tail holding the rest, each pre-populated with a copy of s's current
// contents and joined back to s at the position it was split from — so a
// write to either view lands in s at the matching offset, letting a writer
// work through a narrower view while s (and anything already joined to s)
// sees the aggregate.
func (s *Stream) Split(at int) (head, tail *Stream, err error) {
	if at < 0 || at > len(s.buf) {
		return nil, nil, fmt.Errorf("objfile: split point %d out of range for a %d-byte stream", at, len(s.buf))
	}
	head = NewStream()
	head.buf = append([]byte{}, s.buf[:at]...)
	head.Join(s, 0)

	tail = NewStream()
	tail.buf = append([]byte{}, s.buf[at:]...)
	tail.Join(s, at)

	return head, tail, nil
}
