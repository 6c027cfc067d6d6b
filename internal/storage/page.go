package storage

import (
	"encoding/binary"
	"errors"

	"pagedb/pkg/types"
)

const (
	// PageHeaderSize covers PageID(8) + SlotCount(2) + FreeSpaceOff(2).
	PageHeaderSize = 12
	// SlotEntrySize covers Offset(2) + Length(2).
	SlotEntrySize = 4
)

var (
	ErrPageFull     = errors.New("page is full")
	ErrSlotNotFound = errors.New("slot not found")
)

// SlottedPage is the record layout for data pages.
//
// Layout:
//
//	+---------------------+
//	| Header (12 bytes)   |
//	+---------------------+
//	| Slot directory →    |
//	+---------------------+
//	| Free space          |
//	+---------------------+
//	| ← Tuple payloads    |
//	+---------------------+
//
// The slot directory grows forward from the header; payloads grow backward
// from the end of the page. A slot entry with length 0 is a tombstone.
type SlottedPage struct {
	data []byte
}

// NewSlottedPage formats buf as an empty slotted page for pageNo.
// The buffer is modified in place.
func NewSlottedPage(pageNo types.PageID, buf []byte) *SlottedPage {
	for i := range buf {
		buf[i] = 0
	}
	p := &SlottedPage{data: buf}
	binary.LittleEndian.PutUint64(buf[0:8], uint64(pageNo))
	p.setSlotCount(0)
	p.setFreeSpaceOff(uint16(len(buf)))
	return p
}

// PageFromBytes interprets buf as an existing slotted page, in place.
func PageFromBytes(buf []byte) *SlottedPage {
	return &SlottedPage{data: buf}
}

// PageNo returns the page id stored in the header.
func (p *SlottedPage) PageNo() types.PageID {
	return types.PageID(binary.LittleEndian.Uint64(p.data[0:8]))
}

// SlotCount returns the number of slot directory entries, tombstones
// included.
func (p *SlottedPage) SlotCount() uint16 {
	return binary.LittleEndian.Uint16(p.data[8:10])
}

func (p *SlottedPage) setSlotCount(count uint16) {
	binary.LittleEndian.PutUint16(p.data[8:10], count)
}

// FreeSpaceOff returns the offset where the next payload would end.
func (p *SlottedPage) FreeSpaceOff() uint16 {
	return binary.LittleEndian.Uint16(p.data[10:12])
}

func (p *SlottedPage) setFreeSpaceOff(off uint16) {
	binary.LittleEndian.PutUint16(p.data[10:12], off)
}

func (p *SlottedPage) slot(slotNo uint16) (offset, length uint16) {
	pos := PageHeaderSize + int(slotNo)*SlotEntrySize
	offset = binary.LittleEndian.Uint16(p.data[pos : pos+2])
	length = binary.LittleEndian.Uint16(p.data[pos+2 : pos+4])
	return
}

func (p *SlottedPage) setSlot(slotNo uint16, offset, length uint16) {
	pos := PageHeaderSize + int(slotNo)*SlotEntrySize
	binary.LittleEndian.PutUint16(p.data[pos:pos+2], offset)
	binary.LittleEndian.PutUint16(p.data[pos+2:pos+4], length)
}

// FreeSpace returns the bytes between the end of the slot directory and
// the start of the payload area.
func (p *SlottedPage) FreeSpace() int {
	dirEnd := PageHeaderSize + int(p.SlotCount())*SlotEntrySize
	return int(p.FreeSpaceOff()) - dirEnd
}

// InsertTuple stores a payload and returns its RID. Fails with
// ErrPageFull when the payload plus its slot entry do not fit.
func (p *SlottedPage) InsertTuple(data []byte) (types.RID, error) {
	if len(data)+SlotEntrySize > p.FreeSpace() {
		return types.RID{}, ErrPageFull
	}

	newOff := p.FreeSpaceOff() - uint16(len(data))
	copy(p.data[newOff:p.FreeSpaceOff()], data)
	p.setFreeSpaceOff(newOff)

	slotNo := p.SlotCount()
	p.setSlot(slotNo, newOff, uint16(len(data)))
	p.setSlotCount(slotNo + 1)

	return types.RID{PageNo: p.PageNo(), Slot: slotNo}, nil
}

// GetTuple returns the payload referenced by a slot, or false for slots
// past the directory. A tombstoned slot yields an empty payload.
func (p *SlottedPage) GetTuple(slotNo uint16) ([]byte, bool) {
	if slotNo >= p.SlotCount() {
		return nil, false
	}
	offset, length := p.slot(slotNo)
	out := make([]byte, length)
	copy(out, p.data[offset:offset+length])
	return out, true
}

// DeleteTuple tombstones a slot. Space is not reclaimed.
func (p *SlottedPage) DeleteTuple(slotNo uint16) error {
	if slotNo >= p.SlotCount() {
		return ErrSlotNotFound
	}
	offset, _ := p.slot(slotNo)
	p.setSlot(slotNo, offset, 0)
	return nil
}

// SlotData pairs a slot number with its payload.
type SlotData struct {
	Slot uint16
	Data []byte
}

// IterSlots returns every live (non-tombstone) tuple in slot order.
func (p *SlottedPage) IterSlots() []SlotData {
	var out []SlotData
	count := p.SlotCount()
	for i := uint16(0); i < count; i++ {
		offset, length := p.slot(i)
		if length == 0 {
			continue
		}
		data := make([]byte, length)
		copy(data, p.data[offset:offset+length])
		out = append(out, SlotData{Slot: i, Data: data})
	}
	return out
}

// Bytes returns the underlying page image.
func (p *SlottedPage) Bytes() []byte {
	return p.data
}
