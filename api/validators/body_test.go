package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
)

type checkoutPayload struct {
	Method   string `json:"payment_method" validate:"required,payment_method"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10"`
	Internal string `json:"-"`
}

func decode(t *testing.T, body string) (checkoutPayload, error) {
	t.Helper()
	var p checkoutPayload
	req := httptest.NewRequest("POST", "/api/v1/orders", strings.NewReader(body))
	return p, DecodeJSONBody(req, &p)
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	p, err := decode(t, `{"payment_method":"nequi","quantity":2}`)
	require.NoError(t, err)
	assert.Equal(t, "nequi", p.Method)
	assert.Equal(t, 2, p.Quantity)
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	_, err := decode(t, `{"payment_method":"bitcoin","quantity":40}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details["payment_method"], "must be one of")
	assert.Contains(t, details["payment_method"], "cash_on_delivery")
	assert.Equal(t, "must be at most 10", details["quantity"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"payment_method":"card","quantity":1,"coupon":"x"}`,
		"trailing data": `{"payment_method":"card","quantity":1}{"again":true}`,
		"not json":      `payment_method=card`,
		"empty":         ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, body)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
}

func TestDecodeJSONBodyCapsBodySize(t *testing.T) {
	huge := `{"payment_method":"card","quantity":1,"pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	_, err := decode(t, huge)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abcdef", SanitizeString("abcdef", 0))
}
