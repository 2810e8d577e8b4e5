package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// StripeSignatureHeader carries "t=<unix>,v1=<hex>[,v1=<hex>...]".
const StripeSignatureHeader = "Stripe-Signature"

// VerifyStripeSignature checks the header against an HMAC-SHA256 of
// "<t>.<payload>" computed over the exact bytes received. Deliveries signed
// longer than tolerance ago are rejected; tolerance 0 disables that check.
func VerifyStripeSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration, now time.Time) error {
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return ErrMissingSignature
	}
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}

	timestamp, signatures, err := parseStripeSignatureHeader(header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	signed := signedPayload(timestamp, payload)
	matched := false
	for _, sig := range signatures {
		if verifyHMAC(signed, sig, []byte(secret), sha256.New) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrInvalidSignature
	}

	if tolerance > 0 && now.Sub(time.Unix(timestamp, 0)) > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}
	return nil
}

// SignStripePayload produces a header value the way the processor does. It is
// used by tests and local tooling.
func SignStripePayload(payload []byte, webhookSecret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(signedPayload(ts.Unix(), payload))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func parseStripeSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		timestamp  int64
		haveTS     bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q", value)
			}
			timestamp, haveTS = ts, true
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(value))
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTS {
		return 0, nil, fmt.Errorf("no timestamp in signature header")
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("no v1 signature in signature header")
	}
	return timestamp, signatures, nil
}

func signedPayload(timestamp int64, payload []byte) []byte {
	prefix := strconv.FormatInt(timestamp, 10) + "."
	out := make([]byte, 0, len(prefix)+len(payload))
	out = append(out, prefix...)
	return append(out, payload...)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
