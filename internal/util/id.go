package util

import (
	"crypto/rand"
)

const slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomSlug returns n characters drawn uniformly from [a-z0-9], suitable
// for short shareable identifiers.
func RandomSlug(n int) string {
	out := make([]byte, n)
	buf := make([]byte, n)
	// Rejection sampling keeps the draw uniform: 252 is the largest
	// multiple of 36 below 256.
	const limit = byte(252)
	filled := 0
	for filled < n {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out[filled] = slugAlphabet[int(b)%len(slugAlphabet)]
			filled++
			if filled == n {
				break
			}
		}
	}
	return string(out)
}
