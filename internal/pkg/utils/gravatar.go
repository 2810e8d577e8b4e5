package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

const defaultAvatarSize = 200

// GravatarURL returns the default avatar for a user without an uploaded one.
// Gravatar accepts SHA-256 of the normalized address.
func GravatarURL(email string, size int) string {
	if size <= 0 {
		size = defaultAvatarSize
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	q := url.Values{}
	q.Set("s", strconv.Itoa(size))
	q.Set("d", "mp")
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?" + q.Encode()
}
