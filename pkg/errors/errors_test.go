package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeInvalidTransition: {HTTPStatus: http.StatusBadRequest, PublicMessage: "status transition not allowed", DetailsAllowed: true},
		CodeInsufficientStock: {HTTPStatus: http.StatusBadRequest, PublicMessage: "insufficient stock", DetailsAllowed: true},
		CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:         {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:          {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeRateLimit:         {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", Retryable: true},
		CodeInternal:          {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:        {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		got := MetadataFor(code)
		assert.Equal(t, want.HTTPStatus, got.HTTPStatus, code)
		assert.Equal(t, want.PublicMessage, got.PublicMessage, code)
		assert.Equal(t, want.Retryable, got.Retryable, code)
		assert.Equal(t, want.DetailsAllowed, got.DetailsAllowed, code)
	}
}

func TestUnknownCodesFallBackToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestInternalCodesHideTheirMessage(t *testing.T) {
	assert.False(t, MetadataFor(CodeInternal).ExposeMessage)
	assert.False(t, MetadataFor(CodeDependency).ExposeMessage)
	assert.True(t, MetadataFor(CodeNotFound).ExposeMessage)
}

func TestConstructors(t *testing.T) {
	e := New(CodeValidation, "missing sku")
	assert.Equal(t, CodeValidation, e.Code())
	assert.Nil(t, e.Details())
	assert.Equal(t, map[string]any{"field": "sku"}, e.WithDetails(map[string]any{"field": "sku"}).Details())

	cause := stdErrors.New("unique violation")
	assert.ErrorIs(t, Wrap(CodeConflict, cause, "insert order"), cause)
	assert.Nil(t, Wrap(CodeConflict, nil, "no cause").Unwrap())

	assert.Equal(t, "cannot move from DELIVERED to PAID", Newf(CodeInvalidTransition, "cannot move from %s to %s", "DELIVERED", "PAID").Message())
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "DEPENDENCY_ERROR: execute transaction request: dial tcp: timeout",
		Wrap(CodeDependency, stdErrors.New("dial tcp: timeout"), "execute transaction request").Error())
	assert.Equal(t, "NOT_FOUND: order not found", New(CodeNotFound, "order not found").Error())

	var nilErr *Error
	assert.Empty(t, nilErr.Error())
}

func TestCodeLookupThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reserve stock: %w", New(CodeInsufficientStock, "only 2 left"))
	require.NotNil(t, As(err))
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.Equal(t, CodeInsufficientStock, CodeOf(err))

	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal), "untyped errors carry no code")
	assert.Nil(t, As(nil))
}
