// Package types provides common type definitions for pagedb.
package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// PageID identifies a page in the data file. Pages are numbered densely
// from 0; page n lives at byte offset n*pageSize.
type PageID uint64

// TxID identifies a transaction. Ids are handed out by a process-wide
// monotonic counter starting at 1 and are never reused.
type TxID uint64

// LSN is a log sequence number assigned by the write-ahead log.
type LSN uint64

const (
	// InvalidTxID marks the absence of a transaction.
	InvalidTxID = TxID(0)
	// InvalidLSN marks the absence of a log record (head of a chain).
	InvalidLSN = LSN(0)
)

// RID locates a tuple: the page it lives on and its slot index. RIDs are
// stable for the lifetime of the row since pages are never compacted.
type RID struct {
	PageNo PageID `yaml:"page"`
	Slot   uint16 `yaml:"slot"`
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNo, r.Slot)
}

// ValueType is the data type of a column or value.
type ValueType uint8

const (
	Int64 ValueType = iota
	Varchar
)

func (t ValueType) String() string {
	switch t {
	case Int64:
		return "INT"
	case Varchar:
		return "VARCHAR"
	default:
		return fmt.Sprintf("ValueType(%d)", uint8(t))
	}
}

// Value is a single SQL value.
type Value struct {
	Type ValueType
	Int  int64
	Str  string
}

// NewInt returns an Int64 value.
func NewInt(v int64) Value { return Value{Type: Int64, Int: v} }

// NewString returns a Varchar value.
func NewString(s string) Value { return Value{Type: Varchar, Str: s} }

// String renders the value the way result rows are sent to clients:
// decimal representation for Int64, the literal string for Varchar.
func (v Value) String() string {
	switch v.Type {
	case Int64:
		return strconv.FormatInt(v.Int, 10)
	case Varchar:
		return v.Str
	default:
		return ""
	}
}

// Row serialization format:
//
//	[count u32] [ {tag u8, body} x count ]
//
// tag 0 = Int64 (i64 little-endian), tag 1 = Varchar (u32 length prefix
// followed by UTF-8 bytes).
const (
	tagInt    = 0
	tagString = 1
)

// ErrBadRowPayload reports a row payload that cannot be decoded.
var ErrBadRowPayload = errors.New("invalid row payload")

// SerializeRow encodes an ordered sequence of values.
func SerializeRow(values []Value) []byte {
	size := 4
	for _, v := range values {
		switch v.Type {
		case Int64:
			size += 1 + 8
		case Varchar:
			size += 1 + 4 + len(v.Str)
		}
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(values)))
	offset := 4
	for _, v := range values {
		switch v.Type {
		case Int64:
			buf[offset] = tagInt
			offset++
			binary.LittleEndian.PutUint64(buf[offset:], uint64(v.Int))
			offset += 8
		case Varchar:
			buf[offset] = tagString
			offset++
			binary.LittleEndian.PutUint32(buf[offset:], uint32(len(v.Str)))
			offset += 4
			copy(buf[offset:], v.Str)
			offset += len(v.Str)
		}
	}
	return buf
}

// DeserializeRow decodes a row payload produced by SerializeRow. It fails
// on truncation, unknown tags, and invalid UTF-8 in string bodies.
func DeserializeRow(buf []byte) ([]Value, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: truncated count", ErrBadRowPayload)
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	offset := 4

	values := make([]Value, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset >= len(buf) {
			return nil, fmt.Errorf("%w: truncated tag for value %d", ErrBadRowPayload, i)
		}
		tag := buf[offset]
		offset++

		switch tag {
		case tagInt:
			if offset+8 > len(buf) {
				return nil, fmt.Errorf("%w: truncated int body", ErrBadRowPayload)
			}
			values = append(values, NewInt(int64(binary.LittleEndian.Uint64(buf[offset:]))))
			offset += 8
		case tagString:
			if offset+4 > len(buf) {
				return nil, fmt.Errorf("%w: truncated string length", ErrBadRowPayload)
			}
			strLen := binary.LittleEndian.Uint32(buf[offset:])
			offset += 4
			if offset+int(strLen) > len(buf) {
				return nil, fmt.Errorf("%w: truncated string body", ErrBadRowPayload)
			}
			body := buf[offset : offset+int(strLen)]
			if !utf8.Valid(body) {
				return nil, fmt.Errorf("%w: string body is not valid UTF-8", ErrBadRowPayload)
			}
			values = append(values, NewString(string(body)))
			offset += int(strLen)
		default:
			return nil, fmt.Errorf("%w: unknown tag %d", ErrBadRowPayload, tag)
		}
	}
	return values, nil
}
