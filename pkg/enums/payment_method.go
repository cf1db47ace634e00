package enums

import "fmt"

// PaymentMethod enumerates the tokens buyers may choose at checkout.
type PaymentMethod string

const (
	PaymentMethodCard                PaymentMethod = "card"
	PaymentMethodPSE                 PaymentMethod = "pse"
	PaymentMethodNequi               PaymentMethod = "nequi"
	PaymentMethodBancolombiaTransfer PaymentMethod = "bancolombia_transfer"
	PaymentMethodCashOnDelivery      PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodPSE,
	PaymentMethodNequi,
	PaymentMethodBancolombiaTransfer,
	PaymentMethodCashOnDelivery,
}

// PaymentMethods returns the whitelist.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(validPaymentMethods))
	copy(out, validPaymentMethods)
	return out
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a whitelisted payment method.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
