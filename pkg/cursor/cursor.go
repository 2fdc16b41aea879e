// Package cursor implements HMAC-signed opaque pagination cursors shared by
// every list endpoint in pkg/store. A cursor encodes the sort key of the
// last row returned (created_at, id) so the next page can resume with a
// plain WHERE/LIMIT query instead of an OFFSET that drifts under writes.
package cursor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Page size bounds enforced by every list query. PageSizeDefault is used
// when the caller requests zero; requests above PageSizeMax are clamped
// rather than rejected, since a client asking for too much is not worth
// failing a request over.
const (
	PageSizeMin     = 1
	PageSizeMax     = 100
	PageSizeDefault = 20
)

// ErrInvalidCursor is returned for both a tampered signature and a
// malformed payload. The two failure modes are deliberately
// indistinguishable to callers: telling a client "the signature didn't
// match" versus "we couldn't parse it" would leak whether they guessed
// the secret, for no operational benefit.
var ErrInvalidCursor = errors.New("cursor: invalid cursor")

// payload is the signed JSON body of a cursor: the sort key of the last
// row on the previous page.
type payload struct {
	CreatedAt string `json:"c"`
	ID        string `json:"i"`
}

// Key is the sort position a cursor resumes from.
type Key struct {
	CreatedAt time.Time
	ID        string
}

// Signer encodes and verifies cursors with a shared HMAC secret. The
// secret is an operator-supplied opaque string (see internal/config),
// never a cryptographic key exchanged with clients.
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer from the configured cursor secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Encode produces an opaque, URL-safe cursor string for key.
func (s *Signer) Encode(key Key) string {
	p := payload{CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339Nano), ID: key.ID}
	body, err := json.Marshal(p)
	if err != nil {
		// payload is a fixed, always-marshalable shape.
		panic(fmt.Sprintf("cursor: marshal payload: %v", err))
	}
	sig := s.sign(body)
	return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%s|%s", body, sig)))
}

// Decode recovers the Key from an opaque cursor string, verifying its
// signature. Any failure — bad base64, bad JSON, or a mismatched
// signature — returns ErrInvalidCursor.
func (s *Signer) Decode(cursor string) (Key, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return Key{}, ErrInvalidCursor
	}

	idx := strings.LastIndexByte(string(raw), '|')
	if idx < 0 {
		return Key{}, ErrInvalidCursor
	}
	body, sig := raw[:idx], string(raw[idx+1:])

	wantSig := s.sign(body)
	if !hmac.Equal([]byte(sig), []byte(wantSig)) {
		return Key{}, ErrInvalidCursor
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Key{}, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, p.CreatedAt)
	if err != nil {
		return Key{}, ErrInvalidCursor
	}

	return Key{CreatedAt: createdAt, ID: p.ID}, nil
}

// sign returns the first 16 hex characters of the HMAC-SHA256 digest of
// body. Truncating keeps cursors short; 64 bits of MAC is ample, since a
// forged cursor at worst lets an attacker skip to an arbitrary sort
// position in data they can already page through legitimately.
func (s *Signer) sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))[:16]
}

// ClampPageSize applies PageSizeMin/PageSizeMax/PageSizeDefault to a
// caller-supplied page size.
func ClampPageSize(n int) int {
	if n <= 0 {
		return PageSizeDefault
	}
	if n < PageSizeMin {
		return PageSizeMin
	}
	if n > PageSizeMax {
		return PageSizeMax
	}
	return n
}
