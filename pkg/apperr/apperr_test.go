package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", Validation("bad granularity"), http.StatusBadRequest},
		{"precondition", Precondition("insufficient history"), http.StatusBadRequest},
		{"not found", NotFound("alert not found"), http.StatusNotFound},
		{"conflict", Conflict("active run exists"), http.StatusConflict},
		{"integrity", Integrity("constraint violated"), http.StatusInternalServerError},
		{"upstream", Upstream("worker unreachable"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", Conflict("inner")), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, Status(tt.err))
		})
	}
}

func TestBodySanitizesInternalErrors(t *testing.T) {
	body := Body(Integrity("duplicate key on %s", "forecast_runs"))
	assert.Equal(t, "internal server error", body["error"])
	assert.NotContains(t, body, "fields")

	body = Body(errors.New("sql: connection refused"))
	assert.Equal(t, "internal server error", body["error"])
}

func TestBodyExposesValidationDetails(t *testing.T) {
	err := Validation("invalid granularity").WithField("granularity", "hourly")
	body := Body(err)

	assert.Equal(t, "invalid granularity", body["error"])
	fields, ok := body["fields"].(map[string]string)
	assert.True(t, ok)
	assert.Equal(t, "hourly", fields["granularity"])
}

func TestKindOfUnwraps(t *testing.T) {
	inner := NotFound("missing")
	wrapped := fmt.Errorf("context: %w", inner)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
}

func TestWithCausePreservesChain(t *testing.T) {
	cause := errors.New("disk full")
	err := Integrity("failed to persist").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
