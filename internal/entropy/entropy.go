// Package entropy implements the registry's seed ratchet.
//
// The coordinator keeps a single evolving seed. Every instance creation
// advances it by mixing in per-request material and derives a one-time
// secret alongside the successor seed. The two outputs come from
// disjoint regions of one HKDF expansion, so holding the stored seed
// never reveals a previously issued secret, and repeated calls with
// identical material still move the seed forward.
package entropy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"hatchery/contracts/spawn"
)

// SeedLen is the byte length of a seed.
const SeedLen = 32

// Seed is the evolving ratchet state. Treat it as confidential: it is
// persisted by the coordinator and never exposed through any API.
type Seed [SeedLen]byte

// Secret is a one-time 32-byte secret derived during an advance.
type Secret [32]byte

// Material is the per-request context mixed into the seed. Identical
// material on different seeds, or different material on the same seed,
// both produce unrelated outputs.
type Material struct {
	// Time is the request-scoped timestamp.
	Time time.Time
	// Sequence is the coordinator's operation counter.
	Sequence uint64
	// Sender is the address that triggered the advance.
	Sender spawn.Address
	// Entropy is free-form caller-provided input.
	Entropy string
}

// NewSeed returns a fresh random seed from the operating system CSPRNG.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("could not generate seed: %w", err)
	}
	return s, nil
}

// SeedFromHex parses a hex-encoded seed, for deployments that pin the
// boot seed through configuration.
func SeedFromHex(in string) (Seed, error) {
	b, err := hex.DecodeString(in)
	if err != nil {
		return Seed{}, fmt.Errorf("seed must be hex encoded: %w", err)
	}
	if len(b) != SeedLen {
		return Seed{}, fmt.Errorf("seed must be %d bytes, got %d", SeedLen, len(b))
	}
	var s Seed
	copy(s[:], b)
	return s, nil
}

// Advance derives the successor seed and a fresh secret from the
// current seed and the request material. It is a pure function: the
// caller persists the successor seed before using the secret.
func Advance(seed Seed, m Material) (Seed, Secret) {
	r := hkdf.New(sha256.New, seed[:], m.digest(), []byte("hatchery/entropy/v1"))

	var next Seed
	var secret Secret
	// The expand stream cannot run dry at 64 bytes.
	_, _ = io.ReadFull(r, next[:])
	_, _ = io.ReadFull(r, secret[:])
	return next, secret
}

// digest folds the material into a fixed-size salt. Fields are length
// prefixed so no two distinct materials collapse onto the same bytes.
func (m Material) digest() []byte {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(m.Time.UnixNano()))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], m.Sequence)
	h.Write(buf[:])

	writeLenPrefixed(h, []byte(m.Sender))
	writeLenPrefixed(h, []byte(m.Entropy))

	return h.Sum(nil)
}

func writeLenPrefixed(h io.Writer, b []byte) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(b)))
	h.Write(buf[:])
	h.Write(b)
}
