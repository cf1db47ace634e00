package payments

import (
	"encoding/json"
	"strings"

	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
)

// EventTransactionUpdated is the only gateway event that drives orders.
const EventTransactionUpdated = "transaction.updated"

// TransactionEvent is the body the gateway posts to the webhook endpoint.
type TransactionEvent struct {
	Event       string         `json:"event"`
	Data        EventData      `json:"data"`
	Environment string         `json:"environment"`
	Signature   EventSignature `json:"signature"`
	Timestamp   int64          `json:"timestamp"`
	SentAt      string         `json:"sent_at"`
}

// EventData keeps the raw payload next to the typed transaction so signature
// properties can be resolved against exactly what the gateway sent.
type EventData struct {
	Transaction EventTransaction `json:"transaction"`
	raw         json.RawMessage
}

// UnmarshalJSON decodes the typed view and retains the raw bytes.
func (d *EventData) UnmarshalJSON(b []byte) error {
	type alias EventData
	var decoded alias
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	*d = EventData(decoded)
	d.raw = append(d.raw[:0], b...)
	return nil
}

// MarshalJSON writes the original payload when one was decoded.
func (d EventData) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	type alias EventData
	return json.Marshal(alias(d))
}

// EventTransaction is the transaction snapshot carried by an event.
type EventTransaction struct {
	ID                string                  `json:"id"`
	Status            enums.TransactionStatus `json:"status"`
	Reference         string                  `json:"reference"`
	AmountInCents     int64                   `json:"amount_in_cents"`
	Currency          string                  `json:"currency"`
	CustomerEmail     string                  `json:"customer_email"`
	PaymentMethodType string                  `json:"payment_method_type"`
	StatusMessage     string                  `json:"status_message,omitempty"`
}

// EventSignature lists which data properties were hashed and the resulting checksum.
type EventSignature struct {
	Properties []string `json:"properties"`
	Checksum   string   `json:"checksum"`
}

// ParseTransactionEvent decodes a webhook body. Missing transaction identity
// is a validation error.
func ParseTransactionEvent(body []byte) (*TransactionEvent, error) {
	var event TransactionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload")
	}
	txn := &event.Data.Transaction
	txn.ID = strings.TrimSpace(txn.ID)
	txn.Reference = strings.TrimSpace(txn.Reference)
	if txn.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event transaction id missing")
	}
	if txn.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event transaction reference missing")
	}
	status, err := enums.ParseTransactionStatus(string(txn.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event transaction status")
	}
	txn.Status = status
	return &event, nil
}
