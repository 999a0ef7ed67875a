package core

import (
	"encoding/binary"
	"fmt"
)

// PacketBuffer gives per-packet access to the outermost IP header of a frame.
// It is owned by exactly one worker while rules are evaluated on it.
//
// Reads go straight to the frame. Writes go through MakeWritable, which
// copies a shared frame before the first modification.
type PacketBuffer struct {
	data      []byte
	offset    int
	version   uint8
	headerLen int

	shared   bool
	frozen   bool
	modified bool
	copied   bool
}

// NewPacketBuffer wraps frame data whose IP header starts at ip.Offset.
// If shared is true the frame is never written in place.
func NewPacketBuffer(data []byte, ip IPHeader, shared bool) *PacketBuffer {
	return &PacketBuffer{
		data:      data,
		offset:    ip.Offset,
		version:   ip.Version,
		headerLen: ip.HeaderLen,
		shared:    shared,
	}
}

// Version returns the IP version of the header (4 or 6).
func (b *PacketBuffer) Version() uint8 { return b.version }

// Network returns the frame bytes starting at the IP header.
func (b *PacketBuffer) Network() []byte { return b.data[b.offset:] }

// HeaderLen returns the IP header length located by the decoder.
func (b *PacketBuffer) HeaderLen() int { return b.headerLen }

// MakeWritable returns the first n bytes of the IP header for writing.
// It fails with ErrNotWritable when the buffer is frozen or n exceeds the
// captured bytes.
func (b *PacketBuffer) MakeWritable(n int) ([]byte, error) {
	if b.frozen {
		return nil, fmt.Errorf("%w: buffer finalized", ErrNotWritable)
	}
	if n <= 0 || b.offset+n > len(b.data) {
		return nil, fmt.Errorf("%w: need %d header bytes, have %d", ErrNotWritable, n, len(b.data)-b.offset)
	}
	if b.shared {
		owned := make([]byte, len(b.data))
		copy(owned, b.data)
		b.data = owned
		b.shared = false
		b.copied = true
	}
	b.modified = true
	return b.data[b.offset : b.offset+n], nil
}

// Modified reports whether MakeWritable handed out the header for writing.
func (b *PacketBuffer) Modified() bool { return b.modified }

// Copied reports whether a shared frame had to be copied.
func (b *PacketBuffer) Copied() bool { return b.copied }

// Finalize refreshes the IPv4 header checksum if the header was modified,
// then freezes the buffer. It returns the resulting frame.
func (b *PacketBuffer) Finalize() []byte {
	if b.frozen {
		return b.data
	}
	if b.modified && b.version == 4 && b.offset+b.headerLen <= len(b.data) {
		hdr := b.data[b.offset : b.offset+b.headerLen]
		hdr[10], hdr[11] = 0, 0
		binary.BigEndian.PutUint16(hdr[10:12], IPv4Checksum(hdr))
	}
	b.frozen = true
	return b.data
}

// Bytes returns the current frame.
func (b *PacketBuffer) Bytes() []byte { return b.data }

// IPv4Checksum computes the one's complement header checksum. The checksum
// field itself must be zero or the result verifies to zero.
func IPv4Checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		sum += uint32(hdr[i])<<8 | uint32(hdr[i+1])
	}
	if len(hdr)%2 == 1 {
		sum += uint32(hdr[len(hdr)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
