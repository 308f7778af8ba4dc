package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// NonceIssuer mints and checks rotating request tokens for the public
// tracking endpoints. A nonce is the HMAC of the session id and a
// time bucket; it stays valid through the current and previous
// bucket, so a page loaded just before rotation can still report.
type NonceIssuer struct {
	secret   []byte
	interval time.Duration
	now      func() time.Time
}

// NewNonceIssuer creates a nonce issuer. interval controls how often
// tokens rotate; anything below one second would break the bucket
// arithmetic and falls back to the 12-hour default.
func NewNonceIssuer(secret string, interval time.Duration) *NonceIssuer {
	if interval < time.Second {
		interval = 12 * time.Hour
	}
	return &NonceIssuer{
		secret:   []byte(secret),
		interval: interval,
		now:      time.Now,
	}
}

func (n *NonceIssuer) tokenFor(sessionID string, bucket int64) string {
	mac := hmac.New(sha256.New, n.secret)
	fmt.Fprintf(mac, "%s:%d", sessionID, bucket)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *NonceIssuer) bucket() int64 {
	return n.now().Unix() / int64(n.interval/time.Second)
}

// Issue returns the current nonce for a session.
func (n *NonceIssuer) Issue(sessionID string) string {
	return n.tokenFor(sessionID, n.bucket())
}

// Verify reports whether nonce is valid for the session in the
// current or previous rotation window.
func (n *NonceIssuer) Verify(sessionID, nonce string) bool {
	b := n.bucket()
	for _, candidate := range []string{n.tokenFor(sessionID, b), n.tokenFor(sessionID, b-1)} {
		if hmac.Equal([]byte(candidate), []byte(nonce)) {
			return true
		}
	}
	return false
}
