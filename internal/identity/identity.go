// Package identity parses platform account identities (Epic, Steam) and
// derives the AES-256 key material that seals a player's save containers.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrFormat indicates the identity string matches no known scheme.
var ErrFormat = errors.New("unrecognized platform identity")

// Platform discriminates the identity variants.
type Platform int

const (
	// PlatformEpic is a 32-character hex Epic account id.
	PlatformEpic Platform = iota + 1
	// PlatformSteam is a 64-bit composite SteamID.
	PlatformSteam
)

// Identity is a parsed platform account identity. Immutable once parsed.
type Identity struct {
	platform Platform
	epicID   string // lowercase hex, 32 chars
	steamID  uint64 // universe<<56 | type<<52 | instance<<32 | accountID
}

var (
	epicPattern     = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	steam64Pattern  = regexp.MustCompile(`^[0-9]{1,20}$`)
	steam2Pattern   = regexp.MustCompile(`^STEAM_([0-9]):([01]):([0-9]+)$`)
	steam3Pattern   = regexp.MustCompile(`^\[([A-Za-z]):([0-9]+):([0-9]+)(?::([0-9]+))?\]$`)
	steamHexPattern = regexp.MustCompile(`^steam:([0-9a-fA-F]{1,16})$`)
)

// accountTypeLetters maps SteamID3 bracket letters to account type values.
var accountTypeLetters = map[string]uint64{
	"I": 0, "U": 1, "M": 2, "G": 3, "A": 4,
	"P": 5, "C": 6, "g": 7, "T": 8, "a": 10,
}

// ParseIdentity parses s as an Epic account id first, then as any accepted
// textual SteamID representation (decimal SteamID64, STEAM_U:Y:Z, [T:U:A],
// steam:<hex>). It returns ErrFormat when neither scheme matches.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)

	if epicPattern.MatchString(s) {
		return Identity{platform: PlatformEpic, epicID: strings.ToLower(s)}, nil
	}

	if steam64Pattern.MatchString(s) {
		id, err := strconv.ParseUint(s, 10, 64)
		if err == nil {
			return Identity{platform: PlatformSteam, steamID: id}, nil
		}
	}

	if m := steam2Pattern.FindStringSubmatch(s); m != nil {
		universe, _ := strconv.ParseUint(m[1], 10, 8)
		if universe == 0 {
			// Legacy STEAM_0 ids belong to the public universe.
			universe = 1
		}
		y, _ := strconv.ParseUint(m[2], 10, 1)
		z, err := strconv.ParseUint(m[3], 10, 32)
		if err == nil {
			account := z*2 + y
			return Identity{platform: PlatformSteam, steamID: compose(universe, 1, 1, account)}, nil
		}
	}

	if m := steam3Pattern.FindStringSubmatch(s); m != nil {
		accountType, ok := accountTypeLetters[m[1]]
		if ok {
			universe, uerr := strconv.ParseUint(m[2], 10, 8)
			account, aerr := strconv.ParseUint(m[3], 10, 32)
			instance := uint64(1)
			var ierr error
			if m[4] != "" {
				instance, ierr = strconv.ParseUint(m[4], 10, 20)
			}
			if uerr == nil && aerr == nil && ierr == nil {
				return Identity{platform: PlatformSteam, steamID: compose(universe, accountType, instance, account)}, nil
			}
		}
	}

	if m := steamHexPattern.FindStringSubmatch(s); m != nil {
		id, err := strconv.ParseUint(m[1], 16, 64)
		if err == nil {
			return Identity{platform: PlatformSteam, steamID: id}, nil
		}
	}

	return Identity{}, fmt.Errorf("%q: %w", s, ErrFormat)
}

// compose packs the Steam identity fields into the 64-bit composite value.
func compose(universe, accountType, instance, account uint64) uint64 {
	return universe<<56 | accountType<<52 | (instance&0xFFFFF)<<32 | account&0xFFFFFFFF
}

// Platform reports which identity scheme the value carries.
func (id Identity) Platform() Platform {
	return id.platform
}

// SteamID returns the composite SteamID64 for Steam identities, 0 otherwise.
func (id Identity) SteamID() uint64 {
	return id.steamID
}

// EpicID returns the lowercase hex account id for Epic identities.
func (id Identity) EpicID() string {
	return id.epicID
}

// Bytes returns the key-derivation input for the identity: Epic ids become
// the UTF-16LE encoding of the 32 hex characters (64 bytes), Steam ids the
// little-endian encoding of the composite (8 bytes).
func (id Identity) Bytes() []byte {
	switch id.platform {
	case PlatformEpic:
		b := make([]byte, 0, len(id.epicID)*2)
		for i := 0; i < len(id.epicID); i++ {
			b = append(b, id.epicID[i], 0)
		}
		return b
	case PlatformSteam:
		return steamBytes(id.steamID)
	default:
		return nil
	}
}

func steamBytes(id uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return b
}

// String renders the identity in its canonical textual form.
func (id Identity) String() string {
	switch id.platform {
	case PlatformEpic:
		return id.epicID
	case PlatformSteam:
		return strconv.FormatUint(id.steamID, 10)
	default:
		return ""
	}
}
