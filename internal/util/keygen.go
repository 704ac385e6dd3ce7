package util

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"regexp"
	"strings"
)

const (
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keySegments    = 4
	keySegmentSize = 5
	keyDelimiter   = "-"
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{5}(-[A-Z0-9]{5}){3}$`)

// KeyGenerator produces display license keys. The source is not
// cryptographic: keys identify a purchase, they are not secrets that must
// resist guessing.
type KeyGenerator struct {
	intN func(n int) int
}

// NewKeyGenerator returns a generator drawing from r, or from the
// process-wide source when r is nil.
func NewKeyGenerator(r *rand.Rand) *KeyGenerator {
	if r == nil {
		return &KeyGenerator{intN: rand.IntN}
	}
	return &KeyGenerator{intN: r.IntN}
}

// Generate returns a key of the form XXXXX-XXXXX-XXXXX-XXXXX. It does not
// check for collisions.
func (g *KeyGenerator) Generate() string {
	var b strings.Builder
	b.Grow(keySegments*keySegmentSize + keySegments - 1)
	for i := 0; i < keySegments; i++ {
		if i > 0 {
			b.WriteString(keyDelimiter)
		}
		for j := 0; j < keySegmentSize; j++ {
			b.WriteByte(keyAlphabet[g.intN(len(keyAlphabet))])
		}
	}
	return b.String()
}

var defaultGenerator = NewKeyGenerator(nil)

// GenerateLicenseKey returns a fresh key from the process-wide generator.
func GenerateLicenseKey() string {
	return defaultGenerator.Generate()
}

// HashLicenseKey returns the hex SHA-256 digest stored next to each key.
func HashLicenseKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsLicenseKeyFormat reports whether s looks like a generated key.
func IsLicenseKeyFormat(s string) bool {
	return licenseKeyPattern.MatchString(s)
}
