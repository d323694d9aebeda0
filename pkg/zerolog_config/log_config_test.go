package zerolog_config

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Level: "warn", JSON: true, Out: &buf})

	logger.Info().Msg("dropped")
	logger.Warn().Str("requestNumber", "NTR-2610-0001").Msg("kept")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "NTR-2610-0001", line["requestNumber"])
}

func TestElasticsearchWriter(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logs/_doc", r.URL.Path)
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		got = buf.Bytes()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, err := ElasticsearchWriter{URL: srv.URL + "/logs"}.Write([]byte(`{"message":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.JSONEq(t, `{"message":"x"}`, string(got))
}

func TestElasticsearchWriterRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := ElasticsearchWriter{URL: srv.URL}.Write([]byte(`{}`))
	assert.Error(t, err)
}
