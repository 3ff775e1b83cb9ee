package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/config"
)

// cheapHasherConfig keeps argon2 fast enough for unit tests.
var cheapHasherConfig = config.HasherConfig{MemoryKiB: 64, Time: 1, Threads: 1, KeyLength: 16}

func TestHash(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapHasherConfig)

	t.Run("produces PHC string", func(t *testing.T) {
		hash, err := hasher.Hash("Correct-horse1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestVerify(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapHasherConfig)
	hash, err := hasher.Hash("Correct-horse1")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("Correct-horse1", hash))
	})

	t.Run("other password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("Correct-horse2", hash))
		assert.False(t, hasher.Verify("", hash))
	})

	malformed := map[string]string{
		"garbage":        "not-a-valid-hash",
		"wrong algo":     "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"bad version":    "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"bad params":     "$argon2id$v=19$invalid$c2FsdA$aGFzaA",
		"bad salt":       "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA",
		"bad key":        "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!",
		"threads 256":    "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA",
		"truncated":      hash[:len(hash)-10],
		"empty":          "",
		"broken bcrypt":  "$2a$10$short",
		"extra segments": hash + "$x",
	}
	for name, encoded := range malformed {
		t.Run("malformed "+name+" returns false", func(t *testing.T) {
			assert.False(t, hasher.Verify("Correct-horse1", encoded))
		})
	}

	t.Run("verifies legacy bcrypt", func(t *testing.T) {
		legacy, err := bcrypt.GenerateFromPassword([]byte("Legacy-pass1"), bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, hasher.Verify("Legacy-pass1", string(legacy)))
		assert.False(t, hasher.Verify("Legacy-pass2", string(legacy)))
	})

	t.Run("dummy verification always fails", func(t *testing.T) {
		assert.False(t, hasher.VerifyDummy("timing-equalization-placeholder"))
	})
}

func TestNeedsRehash(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapHasherConfig)

	t.Run("current parameters", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsRehash(hash))
	})

	t.Run("bcrypt", func(t *testing.T) {
		legacy, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, hasher.NeedsRehash(string(legacy)))
	})

	t.Run("outdated argon2 parameters", func(t *testing.T) {
		old := auth.NewArgon2idHasher(config.HasherConfig{MemoryKiB: 32, Time: 1, Threads: 1, KeyLength: 16})
		hash, err := old.Hash("password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsRehash(hash))
		assert.True(t, hasher.Verify("password", hash), "old hashes still verify")
	})

	t.Run("unparseable", func(t *testing.T) {
		assert.True(t, hasher.NeedsRehash("nope"))
	})
}

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapHasherConfig)
	policy := auth.NewPasswordPolicy(testPasswordConfig())

	for _, p := range []string{"Abcdef1!", "Zürich-2024", "ÄÖÜ äöü 9#", "Tr0ub4dor&3"} {
		require.NoError(t, policy.Validate(p), p)
		hash, err := hasher.Hash(p)
		require.NoError(t, err)
		assert.True(t, hasher.Verify(p, hash), p)
		assert.False(t, hasher.Verify(p+"x", hash), p)
		assert.False(t, hasher.Verify(strings.ToLower(p), hash), p)
	}
}
