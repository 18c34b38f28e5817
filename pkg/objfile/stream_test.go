package objfile

import "testing"

func TestStreamWriteAppends(t *testing.T) {
	s := NewStream()
	s.Write([]byte{1, 2, 3})
	s.Write([]byte{4, 5})
	if got := s.Bytes(); string(got) != string([]byte{1, 2, 3, 4, 5}) {
		t.Fatalf("got %v, want [1 2 3 4 5]", got)
	}
}

func TestStreamWriteAtExtends(t *testing.T) {
	s := NewStream()
	s.Write([]byte{1, 2})
	if err := s.WriteAt(4, []byte{9}); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	want := []byte{1, 2, 0, 0, 9}
	if got := s.Bytes(); string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStreamReadOutOfRange(t *testing.T) {
	s := NewStream()
	s.Write([]byte{1, 2})
	if _, err := s.Read(1, 5); err == nil {
		t.Fatal("expected an error reading past the end of the stream")
	}
}

// TestStreamJoinPropagates covers spec.md §5: a write to a joined child
// stream must land in its parent at the registered offset.
func TestStreamJoinPropagates(t *testing.T) {
	parent := NewStream()
	parent.Write([]byte{0, 0, 0, 0})

	child := NewStream()
	child.Join(parent, 2)
	child.Write([]byte{7, 8})

	want := []byte{0, 0, 7, 8}
	if got := parent.Bytes(); string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestStreamJoinChain covers a multi-level join: a write to a grandchild
// must propagate through its immediate parent into the root.
func TestStreamJoinChain(t *testing.T) {
	root := NewStream()
	root.Write(make([]byte, 6))

	mid := NewStream()
	mid.Join(root, 2)
	mid.Write(make([]byte, 4))

	leaf := NewStream()
	leaf.Join(mid, 1)
	leaf.Write([]byte{42})

	got, err := root.Read(3, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 42 {
		t.Fatalf("got %v, want [42] at offset 3 of root", got)
	}
}

// TestStreamSplit covers spec.md §5: splitting a stream yields two views
// that each still reflect the original's pre-split contents and propagate
// further writes back into it.
func TestStreamSplit(t *testing.T) {
	s := NewStream()
	s.Write([]byte{1, 2, 3, 4})

	head, tail, err := s.Split(2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if string(head.Bytes()) != string([]byte{1, 2}) {
		t.Fatalf("head = %v, want [1 2]", head.Bytes())
	}
	if string(tail.Bytes()) != string([]byte{3, 4}) {
		t.Fatalf("tail = %v, want [3 4]", tail.Bytes())
	}

	tail.Write([]byte{9})
	want := []byte{1, 2, 3, 4, 9}
	if got := s.Bytes(); string(got) != string(want) {
		t.Fatalf("after tail write, s = %v, want %v", got, want)
	}
}

func TestStreamSplitOutOfRange(t *testing.T) {
	s := NewStream()
	s.Write([]byte{1, 2})
	if _, _, err := s.Split(5); err == nil {
		t.Fatal("expected an error splitting past the end of the stream")
	}
}
