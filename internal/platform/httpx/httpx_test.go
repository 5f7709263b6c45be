package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type depositRequest struct {
	Amount string `json:"amount" validate:"required"`
	Note   string `json:"note" validate:"max=10"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"ok", `{"amount":"12.50"}`, ""},
		{"malformed", `{"amount":`, "invalid request body"},
		{"unknown field", `{"amount":"1","x":1}`, "invalid request body"},
		{"missing", `{}`, "Amount failed required"},
		{"too long", `{"amount":"1","note":"abcdefghijkl"}`, "Note failed max=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst depositRequest
			err := Decode(req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "12.50", dst.Amount)
				return
			}
			require.Error(t, err)
			assert.True(t, IsBadRequest(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusPaymentRequired, "insufficient_funds", "insufficient wallet balance")

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, ErrorBody{Error: "insufficient wallet balance", Code: "insufficient_funds"}, body)
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	h := RequestLogger("test", zaptest.NewLogger(t))(http.HandlerFunc(Health))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
