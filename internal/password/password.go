// Package password verifies and produces credentials in the ERP's salted
// digest format: {ALG}salt$digest, {ALG}digest, or bare legacy plaintext.
package password

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultAlgorithm is what the ERP historically hashes with.
	DefaultAlgorithm = "SHA"

	saltSeparator = "$"
	saltBytes     = 16
)

// Verify checks a plaintext secret against a stored digest string. It never
// fails outward: malformed stored values, unknown algorithms and digest
// errors all yield false.
func Verify(plain, stored string) bool {
	if plain == "" && stored == "" {
		return false
	}
	if stored == "" {
		return false
	}

	if !strings.HasPrefix(stored, "{") || !strings.Contains(stored, "}") {
		// Bare legacy plaintext. Accepted, but flagged.
		log.Warn().Msg("stored credential is in legacy plaintext format")
		return subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1
	}

	end := strings.Index(stored, "}")
	alg := stored[1:end]
	saltAndDigest := stored[end+1:]

	salt, expected := "", saltAndDigest
	if i := strings.Index(saltAndDigest, saltSeparator); i >= 0 {
		salt = saltAndDigest[:i]
		expected = saltAndDigest[i+1:]
	}

	computed, err := Hash(plain, salt, alg)
	if err != nil {
		log.Error().Err(err).Msg("credential digest computation failed")
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(computed)) == 1
}

// Hash digests plain+salt with the named algorithm and returns the base64
// encoded digest (no format wrapper).
func Hash(plain, salt, alg string) (string, error) {
	h, err := newDigest(normalize(alg))
	if err != nil {
		return "", err
	}
	if _, err := h.Write([]byte(plain + salt)); err != nil {
		return "", fmt.Errorf("hash %s: %w", alg, err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Generate produces a new stored-format string {ALG}salt$digest with a
// random 128-bit salt. An empty alg falls back to DefaultAlgorithm.
func Generate(plain, alg string) (string, error) {
	if strings.TrimSpace(alg) == "" {
		alg = DefaultAlgorithm
	}
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt := base64.StdEncoding.EncodeToString(raw)

	digest, err := Hash(plain, salt, alg)
	if err != nil {
		return "", err
	}
	return "{" + alg + "}" + salt + saltSeparator + digest, nil
}

// GenerateUnguessable produces a stored credential for a random secret that
// is discarded immediately. Provisioned accounts are seeded with it so they
// cannot authenticate (not even with an empty password) until the ERP assigns
// a real credential.
func GenerateUnguessable(alg string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate seed secret: %w", err)
	}
	return Generate(base64.StdEncoding.EncodeToString(raw), alg)
}

// Supported reports whether the algorithm name (or alias) maps to a digest
// this package can compute.
func Supported(alg string) bool {
	_, err := newDigest(normalize(alg))
	return err == nil
}

// normalize maps the ERP's algorithm aliases onto standard digest names.
// Unrecognized names fall back to SHA-1 with a warning rather than failing
// closed against a valid user.
func normalize(alg string) string {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "SHA", "SHA1", "SHA-1":
		return "SHA-1"
	case "SHA256", "SHA-256":
		return "SHA-256"
	case "SHA512", "SHA-512":
		return "SHA-512"
	case "MD5":
		return "MD5"
	default:
		log.Warn().Str("algorithm", alg).Msg("unknown digest algorithm, defaulting to SHA-1")
		return "SHA-1"
	}
}

func newDigest(name string) (hash.Hash, error) {
	switch name {
	case "SHA-1":
		return sha1.New(), nil
	case "SHA-256":
		return sha256.New(), nil
	case "SHA-512":
		return sha512.New(), nil
	case "MD5":
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", name)
	}
}
