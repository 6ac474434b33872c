package identity

import (
	"encoding/hex"
	"fmt"
)

// KeyMaterial is the 32-byte value used directly as an AES-256 key. It is a
// pure function of an identity and the deriver's seed, lives for one
// encode/decode call and is never persisted.
type KeyMaterial [32]byte

// defaultSeed is the public 32-byte constant the game client ships with.
// Identity bytes are XORed over its prefix to obtain the container key.
var defaultSeed = [32]byte{
	0x5e, 0xc1, 0x7a, 0x09, 0xb3, 0x44, 0xde, 0x62,
	0x28, 0x9f, 0x0c, 0xd1, 0x86, 0x3b, 0xe5, 0x70,
	0x14, 0xa8, 0x57, 0xcc, 0x61, 0xfa, 0x2d, 0x93,
	0x08, 0xbe, 0x45, 0xd7, 0x6a, 0x11, 0xf0, 0x8c,
}

// KeyDeriver derives container keys from platform identities. The seed is
// fixed at construction; the deriver is safe for concurrent use.
type KeyDeriver struct {
	seed [32]byte
}

// NewKeyDeriver creates a deriver using the built-in seed constant.
func NewKeyDeriver() *KeyDeriver {
	return &KeyDeriver{seed: defaultSeed}
}

// NewKeyDeriverWithSeed creates a deriver with an explicit 32-byte seed,
// given as 64 hex characters.
func NewKeyDeriverWithSeed(seedHex string) (*KeyDeriver, error) {
	raw, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key seed: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key seed must be 32 bytes, got %d", len(raw))
	}
	d := &KeyDeriver{}
	copy(d.seed[:], raw)
	return d, nil
}

// DeriveKey parses s and derives its key material. It fails with ErrFormat
// when s matches no identity scheme.
func (d *KeyDeriver) DeriveKey(s string) (KeyMaterial, error) {
	id, err := ParseIdentity(s)
	if err != nil {
		return KeyMaterial{}, err
	}
	return d.Derive(id), nil
}

// Derive produces the key for an already-parsed identity: the seed with its
// first min(len(identityBytes), 32) bytes XORed against the identity bytes.
func (d *KeyDeriver) Derive(id Identity) KeyMaterial {
	key := KeyMaterial(d.seed)
	b := id.Bytes()
	for i := 0; i < len(b) && i < len(key); i++ {
		key[i] ^= b[i]
	}
	return key
}

// DeriveSteam derives the key for a raw SteamID64 composite without going
// through string parsing. The credential search calls this on every
// candidate, so it stays allocation-light.
func (d *KeyDeriver) DeriveSteam(steamID uint64) KeyMaterial {
	key := KeyMaterial(d.seed)
	for i := 0; i < 8; i++ {
		key[i] ^= byte(steamID >> (8 * i))
	}
	return key
}
