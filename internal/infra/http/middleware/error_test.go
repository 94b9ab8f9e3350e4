package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/flowcraft/internal/infra/http/dto"
	"github.com/flowcraft/flowcraft/internal/pkg/errors"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestErrorHandler_FlowErrorKinds(t *testing.T) {
	handler := ErrorHandler()

	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"configuration", errors.Configuration("bad config"), http.StatusBadRequest},
		{"cycle", errors.Cycle("cycle detected"), http.StatusUnprocessableEntity},
		{"cancelled", errors.Cancelled("user cancelled"), http.StatusConflict},
		{"node_execution", errors.NodeExecution("boom", nil), http.StatusUnprocessableEntity},
		{"fatal", errors.Fatal("unrecoverable", nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext()
			handler(tc.err, c)

			assert.Equal(t, tc.wantCode, rec.Code)

			var body dto.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	c, rec := newTestContext()
	handler := ErrorHandler()

	handler(echo.NewHTTPError(http.StatusNotFound, "missing"), c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing", body.Message)
}

func TestErrorHandler_GenericError(t *testing.T) {
	c, rec := newTestContext()
	handler := ErrorHandler()

	handler(assertError("plain failure"), c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Error)
}

func TestErrorHandler_AlreadyCommittedIsNoop(t *testing.T) {
	c, rec := newTestContext()
	require.NoError(t, c.String(http.StatusOK, "already written"))

	ErrorHandler()(assertError("too late"), c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type assertError string

func (e assertError) Error() string { return string(e) }
