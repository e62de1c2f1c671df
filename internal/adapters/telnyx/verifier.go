package telnyx

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/openfax/faxd/internal/errors"
)

// DefaultTimestampTolerance bounds how stale a signed webhook may be.
const DefaultTimestampTolerance = 5 * time.Minute

// Verifier checks Telnyx webhook signatures. Telnyx signs
// "<timestamp>|<raw body>" with Ed25519 and sends the base64 signature and
// unix timestamp in dedicated headers.
type Verifier struct {
	publicKey ed25519.PublicKey
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes the configured public key (base64 or hex, 32 bytes). An
// empty key yields a disabled verifier that accepts everything; Enabled
// reports which mode it is in.
func NewVerifier(publicKey string, tolerance time.Duration) (*Verifier, error) {
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}

	v := &Verifier{tolerance: tolerance, now: time.Now}
	if strings.TrimSpace(publicKey) == "" {
		return v, nil
	}

	decoded, err := decodePublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("telnyx webhook public key: %w", err)
	}
	v.publicKey = decoded
	return v, nil
}

// Enabled reports whether a public key is configured.
func (v *Verifier) Enabled() bool {
	return v.publicKey != nil
}

// Verify checks the signature over the raw body. Any failure, missing
// headers, stale timestamp, or bad signature, is an authentication error.
func (v *Verifier) Verify(payload []byte, timestampHeader, signatureHeader string) error {
	if !v.Enabled() {
		return nil
	}

	if timestampHeader == "" || signatureHeader == "" {
		return apperrors.Unauthenticated("missing webhook signature headers")
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return apperrors.Unauthenticated("webhook timestamp is not a unix timestamp")
	}

	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > v.tolerance {
		return apperrors.Unauthenticated("webhook timestamp outside tolerance window")
	}

	signature, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return apperrors.Unauthenticated("webhook signature is not valid base64")
	}

	message := append([]byte(timestampHeader+"|"), payload...)
	if !ed25519.Verify(v.publicKey, message, signature) {
		return apperrors.Unauthenticated("webhook signature verification failed")
	}
	return nil
}

func decodePublicKey(raw string) (ed25519.PublicKey, error) {
	candidate := strings.TrimSpace(raw)

	if decoded, err := base64.StdEncoding.DecodeString(candidate); err == nil &&
		len(decoded) == ed25519.PublicKeySize {
		return ed25519.PublicKey(decoded), nil
	}

	hexCandidate := strings.TrimPrefix(strings.ToLower(candidate), "0x")
	decoded, err := hex.DecodeString(hexCandidate)
	if err != nil {
		return nil, errors.New("unsupported key format; expected base64 or hex")
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decoded key is %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}
