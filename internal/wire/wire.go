//go:build linux

// Package wire implements the Wayland wire format: length-prefixed
// little-endian messages carrying typed arguments, with file descriptors
// passed out-of-band as SCM_RIGHTS ancillary data.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ObjectID represents a Wayland object identifier.
// Object ID 0 is null/invalid. Object ID 1 is always wl_display.
type ObjectID uint32

// Null is the invalid object ID used for nullable object arguments.
const Null ObjectID = 0

// IsNull reports whether the ID is the null object.
func (id ObjectID) IsNull() bool {
	return id == 0
}

// Opcode identifies a specific request or event within an interface.
type Opcode uint16

// Fixed represents a Wayland fixed-point number (signed 24.8 format).
type Fixed int32

// FixedFromFloat converts a float64 to Fixed, clamping to the 24.8 range.
func FixedFromFloat(f float64) Fixed {
	const maxVal = float64(math.MaxInt32) / 256.0
	const minVal = float64(math.MinInt32) / 256.0

	if f > maxVal {
		f = maxVal
	} else if f < minVal {
		f = minVal
	}

	return Fixed(f * 256.0)
}

// FixedFromInt converts an integer to Fixed.
func FixedFromInt(i int32) Fixed {
	return Fixed(i << 8)
}

// Float returns the Fixed value as a float64.
func (f Fixed) Float() float64 {
	return float64(f) / 256.0
}

// Int returns the integer part of the Fixed value.
func (f Fixed) Int() int32 {
	return int32(f) >> 8
}

// HeaderSize is the wire size of a message header (object ID + size/opcode).
const HeaderSize = 8

// MaxMessageSize is the maximum total message size (64KB per the protocol).
const MaxMessageSize = 64 * 1024

// Errors returned by the codec.
var (
	ErrMessageTooLarge     = errors.New("wire: message exceeds maximum size")
	ErrMessageTooSmall     = errors.New("wire: message smaller than header")
	ErrInvalidStringLen    = errors.New("wire: invalid string length")
	ErrInvalidArrayLen     = errors.New("wire: invalid array length")
	ErrUnexpectedEOF       = errors.New("wire: unexpected end of message")
	ErrStringNotTerminated = errors.New("wire: string not null-terminated")
	ErrTrailingData        = errors.New("wire: trailing bytes after arguments")
	ErrNoFD                = errors.New("wire: required file descriptor missing")
)

// Message is a decoded or to-be-encoded protocol message. For requests the
// ObjectID is the receiver; for events it is the emitting object.
type Message struct {
	ObjectID ObjectID
	Opcode   Opcode

	// Args holds the argument bytes without the header.
	Args []byte

	// FDs are the file descriptors travelling with this message.
	FDs []int
}

// Size returns the total wire size of the message in bytes.
func (m *Message) Size() int {
	return HeaderSize + len(m.Args)
}

// Encode serializes the message with its header. The FDs field is not part
// of the byte stream; callers pass it via SCM_RIGHTS alongside these bytes.
func (m *Message) Encode() ([]byte, error) {
	totalSize := HeaderSize + len(m.Args)
	if totalSize > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	buf := make([]byte, totalSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.ObjectID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalSize)<<16|uint32(m.Opcode))
	copy(buf[8:], m.Args)

	return buf, nil
}

// ParseHeader decodes a message header. Returns the object ID, opcode and
// the total message size including the header.
func ParseHeader(buf []byte) (ObjectID, Opcode, int, error) {
	if len(buf) < HeaderSize {
		return 0, 0, 0, ErrMessageTooSmall
	}

	objectID := ObjectID(binary.LittleEndian.Uint32(buf[0:4]))
	sizeAndOpcode := binary.LittleEndian.Uint32(buf[4:8])

	size := int(sizeAndOpcode >> 16)
	opcode := Opcode(sizeAndOpcode & 0xFFFF)

	if size < HeaderSize {
		return 0, 0, 0, ErrMessageTooSmall
	}
	if size > MaxMessageSize {
		return 0, 0, 0, ErrMessageTooLarge
	}

	return objectID, opcode, size, nil
}

// Encoder builds argument payloads in wire order.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an Encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Reset clears the encoder's buffer for reuse.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded argument bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// PutInt32 appends a signed 32-bit integer.
func (e *Encoder) PutInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

// PutUint32 appends an unsigned 32-bit integer.
func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// PutFixed appends a fixed-point number.
func (e *Encoder) PutFixed(v Fixed) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

// PutObject appends an object ID (also used for new_id arguments).
func (e *Encoder) PutObject(id ObjectID) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(id))
}

// PutString appends a length-prefixed, NUL-terminated string padded to a
// 4-byte boundary. The length prefix includes the terminator.
func (e *Encoder) PutString(s string) {
	length := uint32(len(s) + 1)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)

	for i := 0; i < paddingFor(int(length)); i++ {
		e.buf = append(e.buf, 0)
	}
}

// PutArray appends a length-prefixed byte array padded to a 4-byte boundary.
func (e *Encoder) PutArray(data []byte) {
	length := uint32(len(data))
	e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
	e.buf = append(e.buf, data...)

	for i := 0; i < paddingFor(int(length)); i++ {
		e.buf = append(e.buf, 0)
	}
}

// Decoder reads typed arguments from a request payload. File descriptor
// arguments are not part of the byte stream; the decoder pops them from the
// fd list it was given, in order.
type Decoder struct {
	buf    []byte
	offset int
	fds    []int
	fdIdx  int
}

// NewDecoder creates a Decoder over the argument bytes and the client's
// pending incoming file descriptors.
func NewDecoder(buf []byte, fds []int) *Decoder {
	return &Decoder{buf: buf, fds: fds}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.offset
}

// FDsConsumed returns how many file descriptors have been popped.
func (d *Decoder) FDsConsumed() int {
	return d.fdIdx
}

// Finish reports ErrTrailingData if argument bytes remain unconsumed,
// catching size mismatches between the header and the argument schema.
func (d *Decoder) Finish() error {
	if d.offset != len(d.buf) {
		return ErrTrailingData
	}
	return nil
}

// Int32 reads a signed 32-bit integer.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

// Uint32 reads an unsigned 32-bit integer.
func (d *Decoder) Uint32() (uint32, error) {
	if d.offset+4 > len(d.buf) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.buf[d.offset:])
	d.offset += 4
	return v, nil
}

// Fixed reads a fixed-point number.
func (d *Decoder) Fixed() (Fixed, error) {
	v, err := d.Uint32()
	return Fixed(v), err
}

// Object reads an object ID (also used for new_id arguments).
func (d *Decoder) Object() (ObjectID, error) {
	v, err := d.Uint32()
	return ObjectID(v), err
}

// String reads a length-prefixed, NUL-terminated string.
func (d *Decoder) String() (string, error) {
	length, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	if length > MaxMessageSize {
		return "", ErrInvalidStringLen
	}

	paddedLen := int(length) + paddingFor(int(length))
	if d.offset+paddedLen > len(d.buf) {
		return "", ErrUnexpectedEOF
	}
	if d.buf[d.offset+int(length)-1] != 0 {
		return "", ErrStringNotTerminated
	}

	data := d.buf[d.offset : d.offset+int(length)-1]
	d.offset += paddedLen
	return string(data), nil
}

// Array reads a length-prefixed byte array.
func (d *Decoder) Array() ([]byte, error) {
	length, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	if length > MaxMessageSize {
		return nil, ErrInvalidArrayLen
	}

	paddedLen := int(length) + paddingFor(int(length))
	if d.offset+paddedLen > len(d.buf) {
		return nil, ErrUnexpectedEOF
	}

	data := make([]byte, length)
	copy(data, d.buf[d.offset:])
	d.offset += paddedLen
	return data, nil
}

// FD pops the next file descriptor from the incoming queue.
func (d *Decoder) FD() (int, error) {
	if d.fdIdx >= len(d.fds) {
		return -1, ErrNoFD
	}
	fd := d.fds[d.fdIdx]
	d.fdIdx++
	return fd, nil
}

// paddingFor returns the padding needed to align length to 4 bytes.
func paddingFor(length int) int {
	return (4 - (length % 4)) % 4
}

// MessageBuilder constructs complete outgoing messages, collecting the file
// descriptors that must travel in the same sendmsg call.
type MessageBuilder struct {
	encoder Encoder
	fds     []int
}

// NewMessageBuilder creates an empty MessageBuilder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{encoder: Encoder{buf: make([]byte, 0, 64)}}
}

// Reset clears the builder for reuse.
func (b *MessageBuilder) Reset() {
	b.encoder.Reset()
	b.fds = b.fds[:0]
}

// PutInt32 appends a signed 32-bit integer.
func (b *MessageBuilder) PutInt32(v int32) *MessageBuilder {
	b.encoder.PutInt32(v)
	return b
}

// PutUint32 appends an unsigned 32-bit integer.
func (b *MessageBuilder) PutUint32(v uint32) *MessageBuilder {
	b.encoder.PutUint32(v)
	return b
}

// PutFixed appends a fixed-point number.
func (b *MessageBuilder) PutFixed(v Fixed) *MessageBuilder {
	b.encoder.PutFixed(v)
	return b
}

// PutObject appends an object ID.
func (b *MessageBuilder) PutObject(id ObjectID) *MessageBuilder {
	b.encoder.PutObject(id)
	return b
}

// PutString appends a string.
func (b *MessageBuilder) PutString(s string) *MessageBuilder {
	b.encoder.PutString(s)
	return b
}

// PutArray appends a byte array.
func (b *MessageBuilder) PutArray(data []byte) *MessageBuilder {
	b.encoder.PutArray(data)
	return b
}

// PutFD queues a file descriptor to be passed with the message.
func (b *MessageBuilder) PutFD(fd int) *MessageBuilder {
	b.fds = append(b.fds, fd)
	return b
}

// Build returns a complete Message with the given header.
func (b *MessageBuilder) Build(objectID ObjectID, opcode Opcode) *Message {
	args := make([]byte, len(b.encoder.Bytes()))
	copy(args, b.encoder.Bytes())

	var fds []int
	if len(b.fds) > 0 {
		fds = make([]int, len(b.fds))
		copy(fds, b.fds)
	}

	return &Message{
		ObjectID: objectID,
		Opcode:   opcode,
		Args:     args,
		FDs:      fds,
	}
}
