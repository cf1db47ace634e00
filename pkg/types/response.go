package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// WebhookAck is the body returned to payment gateways. Gateways always
// receive 200; the outcome travels in Success.
type WebhookAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
