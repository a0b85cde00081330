package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSuccess(t *testing.T) {
	c, rec := newTestContext()

	err := Success(c, map[string]string{"name": "INBOX"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"name":"INBOX"`)
}

func TestSuccessWithMessage(t *testing.T) {
	c, rec := newTestContext()

	err := SuccessWithMessage(c, nil, "mailbox renamed")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"mailbox renamed"`)
}

func TestCreated(t *testing.T) {
	c, rec := newTestContext()

	err := Created(c, map[string]uint{"id": 1})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":1`)
}

func TestNoContent(t *testing.T) {
	c, rec := newTestContext()

	err := NoContent(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"mailbox not found", apperrors.ErrMailboxNotFound, http.StatusNotFound, apperrors.CodeMailboxNotFound},
		{"message not found", apperrors.ErrMessageNotFound, http.StatusNotFound, apperrors.CodeMessageNotFound},
		{"mailbox exists", apperrors.ErrMailboxExists, http.StatusConflict, apperrors.CodeMailboxExists},
		{"invalid input", apperrors.ErrInvalidInput, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"content fault", apperrors.ErrContentFault, http.StatusBadRequest, apperrors.CodeContentFault},
		{"authentication failed", apperrors.ErrAuthenticationFailed, http.StatusUnauthorized, apperrors.CodeAuthenticationFailed},
		{"insufficient rights", apperrors.ErrInsufficientRights, http.StatusForbidden, apperrors.CodeInsufficientRights},
		{"backend unavailable", apperrors.ErrBackendUnavailable, http.StatusServiceUnavailable, apperrors.CodeBackendUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext()

			err := Error(c, tt.err)
			require.NoError(t, err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestError_WrappedSentinel(t *testing.T) {
	c, rec := newTestContext()

	err := Error(c, apperrors.Wrap(apperrors.ErrMailboxNotFound, "rename"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestError_AppErrorSuppliesCodeAndMessage(t *testing.T) {
	c, rec := newTestContext()

	cause := errors.New("user mallory not in table")
	err := Error(c, apperrors.NewAppError(cause, "authentication failed", apperrors.CodeAuthenticationFailed))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"authentication failed"`)
	assert.Contains(t, rec.Body.String(), apperrors.CodeAuthenticationFailed)
	// the internal cause never reaches the client
	assert.NotContains(t, rec.Body.String(), "mallory")
}

func TestBadRequest(t *testing.T) {
	c, rec := newTestContext()

	err := BadRequest(c, "uids is required")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"uids is required"`)
}

func TestUnauthorized(t *testing.T) {
	c, rec := newTestContext()

	err := Unauthorized(c, "missing bearer token")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeAuthenticationFailed)
}
