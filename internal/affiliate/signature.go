package affiliate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the request signature: lowercase hex of
// SHA-256(appID + timestamp + payload + secret). The payload must be the
// exact bytes sent as the request body.
func Sign(appID string, timestamp int64, payload []byte, secret string) string {
	h := sha256.New()
	h.Write([]byte(appID))
	h.Write([]byte(fmt.Sprintf("%d", timestamp)))
	h.Write(payload)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// AuthorizationHeader composes the upstream Authorization value. The format
// is fixed by the partner API; no whitespace around the commas.
func AuthorizationHeader(appID string, timestamp int64, signature string) string {
	return fmt.Sprintf("SHA256 Credential=%s,Timestamp=%d,Signature=%s", appID, timestamp, signature)
}
