package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/compliance_layer/internal/logging"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{APIKey: "key"})
	assert.Error(t, err)

	_, err = New(Config{URL: "http://localhost"})
	assert.Error(t, err)

	c, err := New(Config{URL: "http://localhost/", APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", c.baseURL)
}

func TestQueryBuilder_Execute(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"c1"}]`))
	}))
	defer server.Close()

	c, err := New(Config{URL: server.URL, APIKey: "service-key"})
	require.NoError(t, err)

	ctx := logging.WithTraceID(context.Background(), "trace-1")
	resp, err := c.From("gas_certificates").
		Select("*").
		Eq("property_id", "p1").
		Order("expiry_date", true).
		Limit(10).
		Offset(5).
		Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, resp.Error())

	var rows []map[string]string
	require.NoError(t, resp.JSON(&rows))
	assert.Equal(t, "c1", rows[0]["id"])

	require.NotNil(t, got)
	assert.Equal(t, "/rest/v1/gas_certificates", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "*", q.Get("select"))
	assert.Equal(t, "eq.p1", q.Get("property_id"))
	assert.Equal(t, "expiry_date.asc", q.Get("order"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "5", q.Get("offset"))
	assert.Equal(t, "service-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer service-key", got.Header.Get("Authorization"))
	assert.Equal(t, "trace-1", got.Header.Get("X-Trace-ID"))
}

func TestQueryBuilder_ExecuteInsert(t *testing.T) {
	var prefer string
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(data)
	}))
	defer server.Close()

	c, err := New(Config{URL: server.URL, APIKey: "key"})
	require.NoError(t, err)

	resp, err := c.From("gas_certificates").ExecuteInsert(context.Background(), map[string]string{"id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "return=representation", prefer)
	assert.Equal(t, "c1", body["id"])
}

func TestResponse_Error(t *testing.T) {
	testCases := []struct {
		name      string
		resp      Response
		wantNil   bool
		wantMsg   string
		wantCode  string
		transient bool
	}{
		{name: "ok", resp: Response{StatusCode: 200}, wantNil: true},
		{
			name:     "postgrest error",
			resp:     Response{StatusCode: 409, Body: []byte(`{"code":"23505","message":"duplicate key"}`)},
			wantMsg:  "duplicate key",
			wantCode: "23505",
		},
		{
			name:    "auth style error",
			resp:    Response{StatusCode: 401, Body: []byte(`{"error":"invalid_grant","error_description":"bad key"}`)},
			wantMsg: "bad key",
		},
		{
			name:      "non json body",
			resp:      Response{StatusCode: 503, Body: []byte("upstream down")},
			wantMsg:   "Service Unavailable",
			transient: true,
		},
		{
			name:      "rate limited",
			resp:      Response{StatusCode: 429, Body: []byte(`{"message":"slow down"}`)},
			wantMsg:   "slow down",
			transient: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.resp.Error()
			if tc.wantNil {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.resp.StatusCode, apiErr.StatusCode)
			assert.Equal(t, tc.wantMsg, apiErr.Message)
			assert.Equal(t, tc.wantCode, apiErr.Code)
			assert.Equal(t, tc.transient, apiErr.Transient())
		})
	}
}

func TestQueryBuilder_Single(t *testing.T) {
	var accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"id":"c1"}`))
	}))
	defer server.Close()

	c, err := New(Config{URL: server.URL, APIKey: "key"})
	require.NoError(t, err)

	_, err = c.From("gas_certificates").Eq("id", "c1").Single().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.pgrst.object+json", accept)
}
