package identity

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseIdentityEpic(t *testing.T) {
	id, err := ParseIdentity("0123456789ABCDEFfedcba9876543210")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if id.Platform() != PlatformEpic {
		t.Fatalf("platform = %v, want PlatformEpic", id.Platform())
	}
	if got, want := id.EpicID(), "0123456789abcdeffedcba9876543210"; got != want {
		t.Fatalf("EpicID = %q, want lowercased %q", got, want)
	}
	if got, want := id.String(), "0123456789abcdeffedcba9876543210"; got != want {
		t.Fatalf("String = %q, want %q", got, want)
	}
}

func TestParseIdentitySteamForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint64
	}{
		{"steamid64", "76561197960265729", 76561197960265729},
		{"steam2 first account", "STEAM_1:1:0", 0x0110000100000001},
		{"steam2 legacy universe zero", "STEAM_0:1:0", 0x0110000100000001},
		{"steam2 even account", "STEAM_1:0:2", 0x0110000100000004},
		{"steam3 individual", "[U:1:1]", 0x0110000100000001},
		{"steam3 with instance", "[U:1:1:1]", 0x0110000100000001},
		{"steam3 gameserver", "[G:1:42]", 0x013000010000002A},
		{"hex form", "steam:110000100000001", 0x0110000100000001},
		{"whitespace tolerated", "  76561197960265729  ", 76561197960265729},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseIdentity(tt.in)
			if err != nil {
				t.Fatalf("ParseIdentity(%q) failed: %v", tt.in, err)
			}
			if id.Platform() != PlatformSteam {
				t.Fatalf("platform = %v, want PlatformSteam", id.Platform())
			}
			if id.SteamID() != tt.want {
				t.Fatalf("SteamID = %#016x, want %#016x", id.SteamID(), tt.want)
			}
		})
	}
}

func TestParseIdentityEpicTakesPrecedence(t *testing.T) {
	// 32 decimal digits satisfy both the Epic hex pattern and the decimal
	// SteamID64 pattern; Epic wins.
	id, err := ParseIdentity("12345678901234567890123456789012")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if id.Platform() != PlatformEpic {
		t.Fatalf("platform = %v, want PlatformEpic", id.Platform())
	}
}

func TestParseIdentityRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"not-an-id",
		"STEAM_1:2:123",             // Y must be 0 or 1
		"[X:1:1]",                   // unknown account type letter
		"steam:",                    // empty hex
		"steam:0123456789abcdef0",   // 17 hex digits
		"0123456789abcdef",          // 16 hex chars, too short for Epic
		"0123456789abcdef0123456789abcdef00", // 34 hex chars
	}

	for _, in := range tests {
		if _, err := ParseIdentity(in); !errors.Is(err, ErrFormat) {
			t.Fatalf("ParseIdentity(%q): expected ErrFormat, got %v", in, err)
		}
	}
}

func TestIdentityBytesSteam(t *testing.T) {
	id, err := ParseIdentity("76561197960265729") // 0x0110000100000001
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}

	want := []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x10, 0x01}
	if got := id.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("Bytes = %x, want %x", got, want)
	}
}

func TestIdentityBytesEpic(t *testing.T) {
	id, err := ParseIdentity("00000000000000000000000000000Abc")
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}

	b := id.Bytes()
	if len(b) != 64 {
		t.Fatalf("Bytes length = %d, want 64", len(b))
	}
	// UTF-16LE of the lowercased hex characters: each char followed by 0x00.
	for i := 0; i < 29; i++ {
		if b[2*i] != '0' || b[2*i+1] != 0 {
			t.Fatalf("byte pair %d = %#02x %#02x, want '0' 0x00", i, b[2*i], b[2*i+1])
		}
	}
	tail := []byte{'a', 0, 'b', 0, 'c', 0}
	if !bytes.Equal(b[58:], tail) {
		t.Fatalf("tail = %x, want %x", b[58:], tail)
	}
}
