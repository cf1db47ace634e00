package payments

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SignatureVerifier checks the checksum the gateway attaches to each event.
type SignatureVerifier struct {
	secret string
}

// NewSignatureVerifier builds a verifier for the shared events secret. An
// empty secret disables verification; production config refuses to start
// without one.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: strings.TrimSpace(secret)}
}

// Enabled reports whether a secret is configured.
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify recomputes sha256(values of signature.properties + timestamp + secret)
// and compares it with signature.checksum.
func (v *SignatureVerifier) Verify(event *TransactionEvent) bool {
	if !v.Enabled() {
		return true
	}
	if event == nil || len(event.Signature.Properties) == 0 || event.Signature.Checksum == "" {
		return false
	}
	expected, err := v.checksum(event)
	if err != nil {
		return false
	}
	got := strings.ToLower(strings.TrimSpace(event.Signature.Checksum))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func (v *SignatureVerifier) checksum(event *TransactionEvent) (string, error) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return "", err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var data map[string]any
	if err := decoder.Decode(&data); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, path := range event.Signature.Properties {
		value, ok := lookupPath(data, path)
		if !ok {
			return "", fmt.Errorf("signature property %q not found", path)
		}
		sb.WriteString(value)
	}
	sb.WriteString(strconv.FormatInt(event.Timestamp, 10))
	sb.WriteString(v.secret)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), nil
}

// lookupPath resolves a dotted property such as "transaction.amount_in_cents".
func lookupPath(data map[string]any, path string) (string, bool) {
	var current any = data
	for _, part := range strings.Split(strings.TrimSpace(path), ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}
	switch value := current.(type) {
	case nil:
		return "", true
	case string:
		return value, true
	case json.Number:
		return value.String(), true
	case bool:
		return strconv.FormatBool(value), true
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}
}
