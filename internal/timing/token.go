package timing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	randomBytes = 8
	tagBytes    = 8
)

// tokenCodec builds and parses "{unixMillis}_{random}[{tag}]" tokens. With a
// secret the suffix carries a truncated HMAC-SHA256 of everything before it.
type tokenCodec struct {
	secret []byte
}

func (c tokenCodec) signed() bool {
	return len(c.secret) > 0
}

func (c tokenCodec) tag(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil)[:tagBytes])
}

func (c tokenCodec) encode(issuedAt time.Time) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	body := strconv.FormatInt(issuedAt.UnixMilli(), 10) + "_" + hex.EncodeToString(buf)
	if c.signed() {
		return body + c.tag(body), nil
	}
	return body, nil
}

// decode returns the embedded issuance time. Signed codecs reject tokens whose
// tag does not verify.
func (c tokenCodec) decode(token string) (time.Time, bool) {
	stamp, suffix, ok := strings.Cut(token, "_")
	if !ok || stamp == "" || suffix == "" {
		return time.Time{}, false
	}

	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	if _, err := hex.DecodeString(suffix); err != nil {
		return time.Time{}, false
	}

	if c.signed() {
		if len(suffix) != 2*(randomBytes+tagBytes) {
			return time.Time{}, false
		}
		body := stamp + "_" + suffix[:2*randomBytes]
		if !hmac.Equal([]byte(suffix[2*randomBytes:]), []byte(c.tag(body))) {
			return time.Time{}, false
		}
	}

	return time.UnixMilli(ms), true
}
