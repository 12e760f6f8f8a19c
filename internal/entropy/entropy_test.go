package entropy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaterial() Material {
	return Material{
		Time:     time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Sequence: 7,
		Sender:   "owner-1",
		Entropy:  "dice rolls",
	}
}

func TestAdvance(t *testing.T) {
	seed, err := NewSeed()
	require.NoError(t, err)

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		next1, secret1 := Advance(seed, testMaterial())
		next2, secret2 := Advance(seed, testMaterial())

		assert.Equal(t, next1, next2)
		assert.Equal(t, secret1, secret2)
	})

	t.Run("seed moves forward", func(t *testing.T) {
		next, secret := Advance(seed, testMaterial())

		assert.NotEqual(t, seed, next)
		assert.NotEqual(t, Secret{}, secret)
	})

	t.Run("secret differs from successor seed", func(t *testing.T) {
		next, secret := Advance(seed, testMaterial())

		assert.NotEqual(t, next[:], secret[:])
	})

	t.Run("material changes the outputs", func(t *testing.T) {
		base, baseSecret := Advance(seed, testMaterial())

		perturbations := map[string]Material{
			"time":     {Time: testMaterial().Time.Add(time.Nanosecond), Sequence: 7, Sender: "owner-1", Entropy: "dice rolls"},
			"sequence": {Time: testMaterial().Time, Sequence: 8, Sender: "owner-1", Entropy: "dice rolls"},
			"sender":   {Time: testMaterial().Time, Sequence: 7, Sender: "owner-2", Entropy: "dice rolls"},
			"entropy":  {Time: testMaterial().Time, Sequence: 7, Sender: "owner-1", Entropy: "coin flips"},
		}

		for name, m := range perturbations {
			t.Run(name, func(t *testing.T) {
				next, secret := Advance(seed, m)
				assert.NotEqual(t, base, next)
				assert.NotEqual(t, baseSecret, secret)
			})
		}
	})

	t.Run("field boundaries do not collapse", func(t *testing.T) {
		// "owner-1"+"x" must not hash like "owner-1x"+"".
		a := Material{Time: testMaterial().Time, Sequence: 7, Sender: "owner-1", Entropy: "x"}
		b := Material{Time: testMaterial().Time, Sequence: 7, Sender: "owner-1x", Entropy: ""}

		nextA, secretA := Advance(seed, a)
		nextB, secretB := Advance(seed, b)

		assert.NotEqual(t, nextA, nextB)
		assert.NotEqual(t, secretA, secretB)
	})

	t.Run("chained advances never repeat a secret", func(t *testing.T) {
		seen := make(map[Secret]bool)
		current := seed
		for i := 0; i < 100; i++ {
			m := testMaterial()
			m.Sequence = uint64(i)
			next, secret := Advance(current, m)
			assert.False(t, seen[secret], "secret repeated at step %d", i)
			seen[secret] = true
			current = next
		}
	})
}

func TestNewSeed(t *testing.T) {
	a, err := NewSeed()
	require.NoError(t, err)
	b, err := NewSeed()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, Seed{}, a)
}

func TestSeedFromHex(t *testing.T) {
	t.Run("round trips", func(t *testing.T) {
		in := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		seed, err := SeedFromHex(in)
		require.NoError(t, err)
		assert.Equal(t, byte(0x1f), seed[31])
	})

	t.Run("rejects bad encoding", func(t *testing.T) {
		_, err := SeedFromHex("not hex")
		assert.Error(t, err)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := SeedFromHex("0a0b")
		assert.Error(t, err)
	})
}
