package search

import (
	"context"
	"errors"
	"testing"

	"github.com/kenneth/save-resign-gateway/internal/codec"
	"github.com/kenneth/save-resign-gateway/internal/identity"
)

func encodeSample(t *testing.T, steamID uint64) []byte {
	t.Helper()
	d := identity.NewKeyDeriver()
	key := d.DeriveSteam(steamID)
	container, err := codec.New().Encode([]byte("player: searched\nlevel: 3\n"), [32]byte(key))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return container
}

func TestFindSteamIdentity(t *testing.T) {
	target := uint64(DefaultBase + 5)
	sample := encodeSample(t, target)

	finder := NewFinder(codec.New(), identity.NewKeyDeriver())
	got, found, err := finder.FindSteamIdentity(context.Background(), sample, Options{
		Range:   100,
		Workers: 4,
	})
	if err != nil {
		t.Fatalf("FindSteamIdentity failed: %v", err)
	}
	if !found {
		t.Fatal("identity not found in range")
	}
	if got != target {
		t.Fatalf("found %d, want %d", got, target)
	}
}

func TestFindSteamIdentityMatchIsUnique(t *testing.T) {
	target := uint64(DefaultBase + 17)
	sample := encodeSample(t, target)

	// Every other candidate in the window must fail to decode; otherwise a
	// search could return a wrong but plausible identity.
	c := codec.New()
	d := identity.NewKeyDeriver()
	matches := 0
	for offset := uint64(0); offset < 64; offset++ {
		key := d.DeriveSteam(DefaultBase + offset)
		if _, err := c.Decode(sample, [32]byte(key)); err == nil {
			matches++
		}
	}
	if matches != 1 {
		t.Fatalf("window contains %d decodable candidates, want exactly 1", matches)
	}
}

func TestFindSteamIdentityExhaustsRange(t *testing.T) {
	sample := encodeSample(t, DefaultBase+1000) // outside the searched range

	finder := NewFinder(codec.New(), identity.NewKeyDeriver())
	got, found, err := finder.FindSteamIdentity(context.Background(), sample, Options{
		Range:   50,
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("FindSteamIdentity failed: %v", err)
	}
	if found || got != 0 {
		t.Fatalf("expected exhaustion, got id %d found=%v", got, found)
	}
}

func TestFindSteamIdentityCancellation(t *testing.T) {
	sample := encodeSample(t, DefaultBase+1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finder := NewFinder(codec.New(), identity.NewKeyDeriver())
	_, found, err := finder.FindSteamIdentity(ctx, sample, Options{
		Range:   1 << 20,
		Workers: 2,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if found {
		t.Fatal("cancelled search reported a match")
	}
}

func TestFindSteamIdentityRejectsUnalignedSample(t *testing.T) {
	finder := NewFinder(codec.New(), identity.NewKeyDeriver())

	_, _, err := finder.FindSteamIdentity(context.Background(), make([]byte, 33), Options{Range: 10})
	if !errors.Is(err, codec.ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestFindSteamIdentityCustomBase(t *testing.T) {
	base := uint64(DefaultBase + 5000)
	sample := encodeSample(t, base+3)

	finder := NewFinder(codec.New(), identity.NewKeyDeriver())
	got, found, err := finder.FindSteamIdentity(context.Background(), sample, Options{
		Base:    base,
		Range:   10,
		Workers: 1,
	})
	if err != nil {
		t.Fatalf("FindSteamIdentity failed: %v", err)
	}
	if !found || got != base+3 {
		t.Fatalf("found=%v id=%d, want %d", found, got, base+3)
	}
}
