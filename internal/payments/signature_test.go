package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_events_secret"

func signedBody(t *testing.T, id, status, reference string, amount int64, secret string) []byte {
	t.Helper()
	payload := map[string]any{
		"event": EventTransactionUpdated,
		"data": map[string]any{
			"transaction": map[string]any{
				"id":                  id,
				"status":              status,
				"reference":           reference,
				"amount_in_cents":     amount,
				"currency":            "COP",
				"payment_method_type": "NEQUI",
			},
		},
		"environment": "test",
		"signature": map[string]any{
			"properties": []string{"transaction.id", "transaction.status", "transaction.amount_in_cents"},
			"checksum":   checksumFor(id, status, amount, 1767620000, secret),
		},
		"timestamp": 1767620000,
		"sent_at":   "2026-01-05T15:33:20.000Z",
	}
	return mustJSON(t, payload)
}

func checksumFor(id, status string, amount, timestamp int64, secret string) string {
	concatenated := id + status + itoa(amount) + itoa(timestamp) + secret
	sum := sha256.Sum256([]byte(concatenated))
	return hex.EncodeToString(sum[:])
}

func TestSignatureVerifierAcceptsGatewayChecksum(t *testing.T) {
	event, err := ParseTransactionEvent(signedBody(t, "1234-1610641025-49201", "APPROVED", "ORD-260105-0001", 8700000, testSecret))
	require.NoError(t, err)

	verifier := NewSignatureVerifier(testSecret)
	assert.True(t, verifier.Enabled())
	assert.True(t, verifier.Verify(event))
}

func TestSignatureVerifierRejectsTampering(t *testing.T) {
	body := signedBody(t, "1234-1610641025-49201", "APPROVED", "ORD-260105-0001", 8700000, testSecret)

	t.Run("wrong secret", func(t *testing.T) {
		event, err := ParseTransactionEvent(body)
		require.NoError(t, err)
		assert.False(t, NewSignatureVerifier("other").Verify(event))
	})

	t.Run("amount changed after signing", func(t *testing.T) {
		event, err := ParseTransactionEvent(body)
		require.NoError(t, err)
		forged := signedBody(t, "1234-1610641025-49201", "APPROVED", "ORD-260105-0001", 100, "unknown")
		forgedEvent, err := ParseTransactionEvent(forged)
		require.NoError(t, err)
		forgedEvent.Signature = event.Signature
		assert.False(t, NewSignatureVerifier(testSecret).Verify(forgedEvent))
	})

	t.Run("missing property", func(t *testing.T) {
		event, err := ParseTransactionEvent(body)
		require.NoError(t, err)
		event.Signature.Properties = append(event.Signature.Properties, "transaction.unknown")
		assert.False(t, NewSignatureVerifier(testSecret).Verify(event))
	})

	t.Run("no checksum", func(t *testing.T) {
		event, err := ParseTransactionEvent(body)
		require.NoError(t, err)
		event.Signature.Checksum = ""
		assert.False(t, NewSignatureVerifier(testSecret).Verify(event))
	})
}

func TestSignatureVerifierWithoutSecretPasses(t *testing.T) {
	event, err := ParseTransactionEvent(signedBody(t, "tx-1", "APPROVED", "ORD-260105-0001", 100, "anything"))
	require.NoError(t, err)
	event.Signature.Checksum = "garbage"

	verifier := NewSignatureVerifier("  ")
	assert.False(t, verifier.Enabled())
	assert.True(t, verifier.Verify(event))
}

func TestParseTransactionEvent(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{"},
		{name: "missing id", body: `{"data":{"transaction":{"status":"APPROVED","reference":"ORD-260105-0001"}}}`},
		{name: "missing reference", body: `{"data":{"transaction":{"id":"tx","status":"APPROVED"}}}`},
		{name: "unknown status", body: `{"data":{"transaction":{"id":"tx","status":"REFUNDED","reference":"ORD-260105-0001"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTransactionEvent([]byte(tc.body))
			require.Error(t, err)
		})
	}

	event, err := ParseTransactionEvent([]byte(`{"event":"transaction.updated","data":{"transaction":{"id":" tx ","status":"declined","reference":" ORD-260105-0001 ","amount_in_cents":500}}}`))
	require.NoError(t, err)
	assert.Equal(t, "tx", event.Data.Transaction.ID)
	assert.Equal(t, "ORD-260105-0001", event.Data.Transaction.Reference)
	assert.EqualValues(t, "DECLINED", event.Data.Transaction.Status)
}
