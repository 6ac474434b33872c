package codec

import "testing"

func TestChecksumVectors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want uint32
	}{
		{"empty", "", 0x00000001},
		{"single byte", "a", 0x00620062},
		{"abc", "abc", 0x024d0127},
		{"wikipedia", "Wikipedia", 0x11E60398},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Checksum([]byte(tt.data))
			if got != tt.want {
				t.Fatalf("Checksum(%q) = %#08x, want %#08x", tt.data, got, tt.want)
			}
		})
	}
}

func TestAdler32Streaming(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")

	h := NewAdler32()
	h.Write(data[:10])
	h.Write(data[10:17])
	h.Write(data[17:])

	if got, want := h.Sum32(), Checksum(data); got != want {
		t.Fatalf("streamed sum = %#08x, want %#08x", got, want)
	}
}

func TestAdler32Reset(t *testing.T) {
	h := NewAdler32()
	h.Write([]byte("garbage"))
	h.Reset()

	if got := h.Sum32(); got != 1 {
		t.Fatalf("sum after reset = %#08x, want 1", got)
	}

	h.Write([]byte("abc"))
	if got, want := h.Sum32(), Checksum([]byte("abc")); got != want {
		t.Fatalf("sum after reset+write = %#08x, want %#08x", got, want)
	}
}

func TestAdler32LargeInput(t *testing.T) {
	// Exercise the modulo reduction well past 65521 bytes.
	data := make([]byte, 200_000)
	for i := range data {
		data[i] = byte(i)
	}

	h := NewAdler32()
	h.Write(data)
	if got, want := h.Sum32(), Checksum(data); got != want {
		t.Fatalf("large input sum = %#08x, want %#08x", got, want)
	}
}
