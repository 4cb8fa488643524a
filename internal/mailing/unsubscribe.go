package mailing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// UnsubscribePath is the API route served by the unsubscribe handler.
const UnsubscribePath = "/api/waitlist/unsubscribe"

// UnsubscribeLinks builds and verifies unsubscribe URLs. The same waitlist
// id always yields the same URL for a given base URL and key.
type UnsubscribeLinks struct {
	baseURL    string
	signingKey []byte
}

// NewUnsubscribeLinks creates a link builder. An empty signingKey disables
// the signature parameter and verification.
func NewUnsubscribeLinks(baseURL, signingKey string) *UnsubscribeLinks {
	return &UnsubscribeLinks{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
	}
}

// Signed reports whether links carry a signature.
func (l *UnsubscribeLinks) Signed() bool { return len(l.signingKey) > 0 }

// URL returns the unsubscribe link for a waitlist record.
func (l *UnsubscribeLinks) URL(waitlistID string) string {
	q := url.Values{}
	q.Set("id", waitlistID)
	if l.Signed() {
		q.Set("sig", l.sign(waitlistID))
	}
	return l.baseURL + UnsubscribePath + "?" + q.Encode()
}

// Verify checks a signature from an unsubscribe request. It always passes
// when signing is disabled.
func (l *UnsubscribeLinks) Verify(waitlistID, signature string) bool {
	if !l.Signed() {
		return true
	}
	return hmac.Equal([]byte(l.sign(waitlistID)), []byte(signature))
}

func (l *UnsubscribeLinks) sign(data string) string {
	h := hmac.New(sha256.New, l.signingKey)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
