package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, http.StatusOK, map[string]int{"n": 1})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, rec.Body.String())
}

func TestWriteError_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, svcerrors.DataAccess("failed to load certificates", assert.AnError, true))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "failed to load certificates", env.Error)
	assert.Equal(t, "DATA_ACCESS_ERROR", env.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	rec := httptest.NewRecorder()
	ok := DecodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`)), &v)
	assert.True(t, ok)
	assert.Equal(t, "a", v.Name)

	rec = httptest.NewRecorder()
	ok = DecodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"other":1}`)), &v)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	ok = DecodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``)), &v)
	assert.False(t, ok)
	assert.Contains(t, rec.Body.String(), "request body required")
}
