package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/GTDGit/gtd_auth/internal/config"
)

const argon2SaltLen = 16

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// CredentialHasher hashes and verifies passwords.
type CredentialHasher interface {
	// Hash produces an encoded hash with an embedded random salt.
	Hash(password string) (string, error)

	// Verify reports whether password matches encoded. Malformed input
	// yields false.
	Verify(password, encoded string) bool

	// NeedsRehash reports whether encoded was produced with outdated
	// parameters or algorithm.
	NeedsRehash(encoded string) bool

	// VerifyDummy costs as much as Verify and always fails. It is used
	// when the account does not exist.
	VerifyDummy(password string) bool
}

// Argon2idHasher implements CredentialHasher with argon2id and accepts
// legacy bcrypt hashes for verification.
type Argon2idHasher struct {
	params argon2Params
	dummy  string
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// NewArgon2idHasher creates a hasher with the configured cost parameters.
func NewArgon2idHasher(cfg config.HasherConfig) *Argon2idHasher {
	h := &Argon2idHasher{params: argon2Params{
		memory:  cfg.MemoryKiB,
		time:    cfg.Time,
		threads: cfg.Threads,
		keyLen:  cfg.KeyLength,
	}}
	// Verified against when the account does not exist, so that unknown
	// identities cost the same as wrong passwords.
	h.dummy, _ = h.Hash("timing-equalization-placeholder")
	return h
}

// Hash produces an argon2id hash in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.params
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id or bcrypt hash in constant time.
func (h *Argon2idHasher) Verify(password, encoded string) bool {
	if isBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	}

	p, salt, expected, err := decodeArgon2id(encoded)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// VerifyDummy burns the same work as a real verification and always fails.
func (h *Argon2idHasher) VerifyDummy(password string) bool {
	_ = h.Verify(password, h.dummy)
	return false
}

// NeedsRehash is true for bcrypt hashes and for argon2id hashes whose cost
// parameters differ from the configured ones.
func (h *Argon2idHasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	p, salt, _, err := decodeArgon2id(encoded)
	if err != nil {
		return true
	}
	return p != h.params || len(salt) != argon2SaltLen
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func decodeArgon2id(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", version)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 || p.time == 0 || p.memory == 0 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid argon2 parameters")
	}
	p.threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1024 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}
	p.keyLen = uint32(len(key))

	return p, salt, key, nil
}
