package cache

import (
	"hash/fnv"
	"net/url"
	"strings"
)

// Key is the content address of a source URL.
type Key uint64

// KeyOf hashes an already normalized URL with FNV-64a.
func KeyOf(normalized string) Key {
	h := fnv.New64a()
	h.Write([]byte(normalized))
	return Key(h.Sum64())
}

// Normalize returns the canonical form used for keying: surrounding space
// trimmed, scheme and host lowercased, fragment dropped. Unparseable input is
// returned trimmed so it still maps to a stable key.
func Normalize(rawURL string) string {
	s := strings.TrimSpace(rawURL)

	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}
