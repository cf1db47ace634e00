package enums

import (
	"fmt"
	"strings"
)

// TransactionStatus is the status a payment gateway reports for a transaction.
type TransactionStatus string

const (
	TransactionStatusApproved TransactionStatus = "APPROVED"
	TransactionStatusDeclined TransactionStatus = "DECLINED"
	TransactionStatusError    TransactionStatus = "ERROR"
	TransactionStatusVoided   TransactionStatus = "VOIDED"
	TransactionStatusPending  TransactionStatus = "PENDING"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusApproved,
	TransactionStatusDeclined,
	TransactionStatusError,
	TransactionStatusVoided,
	TransactionStatusPending,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw gateway input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
