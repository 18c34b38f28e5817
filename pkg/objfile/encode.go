package objfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// magic tags the start of every encoded object so a misdirected file is
// rejected at decode time instead of producing garbage segments.
const magic = "N86O"

// Encode serializes obj into the minimal length-prefixed binary form
// spec.md §4.7 describes: a magic tag, then the segment list (name,
// origin, label table, byte payload), then the global and external
// reference lists. Every variable-length field is prefixed with its own
// uint32 count or byte length, so Decode never has to scan for a
// terminator.
func Encode(obj *Object) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)

	segments := obj.Segments()
	writeUint32(&buf, uint32(len(segments)))
	for _, seg := range segments {
		writeString(&buf, seg.Name)
		writeUint32(&buf, uint32(seg.Origin))

		writeUint32(&buf, uint32(len(seg.Labels)))
		for name, offset := range seg.Labels {
			writeString(&buf, name)
			writeUint32(&buf, uint32(offset))
		}

		payload := seg.Bytes()
		writeUint32(&buf, uint32(len(payload)))
		buf.Write(payload)
	}

	writeUint32(&buf, uint32(len(obj.Globals)))
	for _, g := range obj.Globals {
		writeString(&buf, g.Name)
		writeString(&buf, g.Segment)
		writeUint32(&buf, uint32(g.Offset))
	}

	writeUint32(&buf, uint32(len(obj.Externs)))
	for _, e := range obj.Externs {
		writeString(&buf, e.Name)
	}

	return buf.Bytes()
}

// Decode parses the form Encode produces back into an Object.
func Decode(data []byte) (*Object, error) {
	r := bytes.NewReader(data)

	tag := make([]byte, len(magic))
	if _, err := r.Read(tag); err != nil || string(tag) != magic {
		return nil, fmt.Errorf("objfile: missing %q magic", magic)
	}

	obj := New()

	segCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("objfile: segment count: %w", err)
	}
	for i := uint32(0); i < segCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: segment %d name: %w", i, err)
		}
		origin, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: segment %d origin: %w", i, err)
		}
		seg := obj.CreateSegment(name)
		seg.Origin = int(origin)

		labelCount, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: segment %d label count: %w", i, err)
		}
		for j := uint32(0); j < labelCount; j++ {
			label, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("objfile: segment %d label %d name: %w", i, j, err)
			}
			offset, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("objfile: segment %d label %d offset: %w", i, j, err)
			}
			seg.Labels[label] = int(offset)
		}

		payloadLen, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: segment %d payload length: %w", i, err)
		}
		payload := make([]byte, payloadLen)
		if _, err := r.Read(payload); err != nil {
			return nil, fmt.Errorf("objfile: segment %d payload: %w", i, err)
		}
		seg.Stream.Write(payload)
	}

	globalCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("objfile: global count: %w", err)
	}
	for i := uint32(0); i < globalCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: global %d name: %w", i, err)
		}
		segment, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: global %d segment: %w", i, err)
		}
		offset, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: global %d offset: %w", i, err)
		}
		obj.Globals = append(obj.Globals, GlobalRef{Name: name, Segment: segment, Offset: int(offset)})
	}

	externCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("objfile: extern count: %w", err)
	}
	for i := uint32(0); i < externCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("objfile: extern %d name: %w", i, err)
		}
		obj.Externs = append(obj.Externs, ExternRef{Name: name})
	}

	return obj, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}
