package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Generate returns a memorable room name such as "sleepy-otter-lantern-4821".
// Names only need to be unique among rooms open at the same time on one server.
func Generate() string {
	parts := []string{
		pick(adjectives),
		pick(animals),
		pick(things),
		digits(4),
	}
	return strings.Join(parts, "-")
}

// Valid reports whether name is usable as a room name on the wire.
func Valid(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

func digits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + randomIndex(10)))
	}
	return b.String()
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("room: failed to read random source: " + err.Error())
	}
	return int(n.Int64())
}
