//go:build linux

package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestFixedConversion(t *testing.T) {
	tests := []struct {
		name     string
		float    float64
		expected float64
	}{
		{"zero", 0.0, 0.0},
		{"positive integer", 42.0, 42.0},
		{"negative integer", -42.0, -42.0},
		{"positive fraction", 3.5, 3.5},
		{"negative fraction", -3.5, -3.5},
		{"small positive", 0.125, 0.125},
		{"small negative", -0.125, -0.125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed := FixedFromFloat(tt.float)
			got := fixed.Float()

			// 24.8 fixed point has ~0.004 precision.
			epsilon := 0.004
			if diff := got - tt.expected; diff < -epsilon || diff > epsilon {
				t.Errorf("FixedFromFloat(%v).Float() = %v, want %v", tt.float, got, tt.expected)
			}
		})
	}
}

func TestFixedFromInt(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 42, 42},
		{"negative", -42, -42},
		{"max", 8388607, 8388607},
		{"min", -8388608, -8388608},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed := FixedFromInt(tt.input)
			if got := fixed.Int(); got != tt.expected {
				t.Errorf("FixedFromInt(%d).Int() = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEncoderInt32(t *testing.T) {
	enc := NewEncoder(16)
	enc.PutInt32(0x12345678)
	enc.PutInt32(-1)

	expected := []byte{
		0x78, 0x56, 0x34, 0x12,
		0xFF, 0xFF, 0xFF, 0xFF,
	}

	if !bytes.Equal(enc.Bytes(), expected) {
		t.Errorf("Int32 encoding: got %x, want %x", enc.Bytes(), expected)
	}
}

func TestEncoderString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{
			"three chars pads to eight",
			"abc",
			[]byte{4, 0, 0, 0, 'a', 'b', 'c', 0},
		},
		{
			"four chars needs pad for terminator",
			"abcd",
			[]byte{5, 0, 0, 0, 'a', 'b', 'c', 'd', 0, 0, 0, 0},
		},
		{
			"empty string",
			"",
			[]byte{1, 0, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewEncoder(32)
			enc.PutString(tt.input)
			if !bytes.Equal(enc.Bytes(), tt.expected) {
				t.Errorf("PutString(%q) = %x, want %x", tt.input, enc.Bytes(), tt.expected)
			}
		})
	}
}

func TestEncoderArray(t *testing.T) {
	enc := NewEncoder(32)
	enc.PutArray([]byte{1, 2, 3, 4, 5})

	expected := []byte{5, 0, 0, 0, 1, 2, 3, 4, 5, 0, 0, 0}
	if !bytes.Equal(enc.Bytes(), expected) {
		t.Errorf("PutArray = %x, want %x", enc.Bytes(), expected)
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	enc := NewEncoder(128)
	enc.PutInt32(-17)
	enc.PutUint32(99)
	enc.PutFixed(FixedFromFloat(12.5))
	enc.PutObject(41)
	enc.PutString("wl_compositor")
	enc.PutArray([]byte{9, 8, 7})

	dec := NewDecoder(enc.Bytes(), nil)

	if v, err := dec.Int32(); err != nil || v != -17 {
		t.Fatalf("Int32 = %d, %v", v, err)
	}
	if v, err := dec.Uint32(); err != nil || v != 99 {
		t.Fatalf("Uint32 = %d, %v", v, err)
	}
	if v, err := dec.Fixed(); err != nil || v.Float() != 12.5 {
		t.Fatalf("Fixed = %v, %v", v, err)
	}
	if v, err := dec.Object(); err != nil || v != 41 {
		t.Fatalf("Object = %d, %v", v, err)
	}
	if v, err := dec.String(); err != nil || v != "wl_compositor" {
		t.Fatalf("String = %q, %v", v, err)
	}
	if v, err := dec.Array(); err != nil || !bytes.Equal(v, []byte{9, 8, 7}) {
		t.Fatalf("Array = %x, %v", v, err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish = %v", err)
	}
}

func TestDecoderStringNotTerminated(t *testing.T) {
	// Length claims 4 bytes but the last byte is not NUL.
	buf := []byte{4, 0, 0, 0, 'a', 'b', 'c', 'd'}
	dec := NewDecoder(buf, nil)

	if _, err := dec.String(); !errors.Is(err, ErrStringNotTerminated) {
		t.Errorf("String = %v, want ErrStringNotTerminated", err)
	}
}

func TestDecoderShortBuffer(t *testing.T) {
	dec := NewDecoder([]byte{1, 2}, nil)
	if _, err := dec.Uint32(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("Uint32 = %v, want ErrUnexpectedEOF", err)
	}
}

func TestDecoderTrailingData(t *testing.T) {
	enc := NewEncoder(16)
	enc.PutUint32(1)
	enc.PutUint32(2)

	dec := NewDecoder(enc.Bytes(), nil)
	if _, err := dec.Uint32(); err != nil {
		t.Fatal(err)
	}
	if err := dec.Finish(); !errors.Is(err, ErrTrailingData) {
		t.Errorf("Finish = %v, want ErrTrailingData", err)
	}
}

func TestDecoderFDQueue(t *testing.T) {
	dec := NewDecoder(nil, []int{7, 8})

	if fd, err := dec.FD(); err != nil || fd != 7 {
		t.Fatalf("FD = %d, %v", fd, err)
	}
	if fd, err := dec.FD(); err != nil || fd != 8 {
		t.Fatalf("FD = %d, %v", fd, err)
	}
	if dec.FDsConsumed() != 2 {
		t.Errorf("FDsConsumed = %d, want 2", dec.FDsConsumed())
	}
	if _, err := dec.FD(); !errors.Is(err, ErrNoFD) {
		t.Errorf("FD = %v, want ErrNoFD", err)
	}
}

func TestMessageEncodeParseIdentity(t *testing.T) {
	b := NewMessageBuilder()
	b.PutUint32(5).PutString("hello").PutFixed(FixedFromInt(3))
	msg := b.Build(12, 4)

	encoded, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}

	objectID, opcode, size, err := ParseHeader(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if objectID != 12 || opcode != 4 {
		t.Errorf("header = (%d, %d), want (12, 4)", objectID, opcode)
	}
	if size != len(encoded) {
		t.Errorf("size = %d, want %d", size, len(encoded))
	}
	if !bytes.Equal(encoded[HeaderSize:], msg.Args) {
		t.Errorf("args mismatch: %x vs %x", encoded[HeaderSize:], msg.Args)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"short", []byte{1, 2, 3}, ErrMessageTooSmall},
		{"size below header", []byte{1, 0, 0, 0, 0, 0, 4, 0}, ErrMessageTooSmall},
		{"size above max", []byte{1, 0, 0, 0, 0, 0, 0xFF, 0xFF}, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := ParseHeader(tt.buf); !errors.Is(err, tt.want) {
				t.Errorf("ParseHeader = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMessageBuilderFDs(t *testing.T) {
	b := NewMessageBuilder()
	b.PutUint32(1).PutFD(42)
	msg := b.Build(3, 0)

	if len(msg.FDs) != 1 || msg.FDs[0] != 42 {
		t.Errorf("FDs = %v, want [42]", msg.FDs)
	}

	b.Reset()
	b.PutUint32(2)
	msg2 := b.Build(3, 0)
	if len(msg2.FDs) != 0 {
		t.Errorf("FDs after reset = %v, want empty", msg2.FDs)
	}
}
