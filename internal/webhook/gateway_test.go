package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestGateway(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Gateway {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{Name: "test", URL: server.URL, Token: "secret-token", Timeout: 2 * time.Second}
	for _, m := range mutate {
		m(&cfg)
	}
	gw, err := New(cfg, testLogger(), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return gw
}

func TestGateway_InvokeSendsArgvEnvelope(t *testing.T) {
	var gotBody map[string]any
	var gotHeaders http.Header

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"result":"{\"ok\":true}"}}`))
	})

	resp, err := gw.Invoke(context.Background(), "searchRecords", map[string]any{
		"sheetId": "3",
		"action":  "overridden",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "secret-token", gotHeaders.Get(DefaultTokenHeader))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, resp.RequestID, gotHeaders.Get("X-Request-ID"))

	argv := gotBody["Context"].(map[string]any)["argv"].(map[string]any)
	assert.Equal(t, "searchRecords", argv["action"])
	assert.Equal(t, "3", argv["sheetId"])
}

func TestGateway_FlatBodyAndCustomHeader(t *testing.T) {
	var gotBody map[string]any
	var gotToken string

	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Token")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"result":{"ok":true}}}`))
	}, func(c *Config) {
		c.FlatBody = true
		c.TokenHeader = "X-Token"
	})

	_, err := gw.Call(context.Background(), "getTables", nil)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "getTables", gotBody["action"])
	assert.NotContains(t, gotBody, "Context")
}

func TestGateway_NonSuccessStatus(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	})

	_, err := gw.Invoke(context.Background(), "getTables", nil)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindHTTPStatus, te.Kind)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Equal(t, "Unauthorized", te.Status)
	assert.Equal(t, "token expired", te.Body)
	assert.Contains(t, err.Error(), "HTTP 401 Unauthorized")
}

func TestGateway_DoesNotRetry(t *testing.T) {
	calls := 0
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gw.Call(context.Background(), "getTables", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGateway_Timeout(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(c *Config) { c.Timeout = 50 * time.Millisecond })

	_, err := gw.Invoke(context.Background(), "searchRecords", nil)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout(), "kind was %s", te.Kind)
}

func TestGateway_RateLimitWaitPastDeadlineIsTimeout(t *testing.T) {
	calls := 0
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":{"result":"{}"}}`))
	}, func(c *Config) {
		c.RateLimit = 0.1
		c.Burst = 1
	})

	_, err := gw.Invoke(context.Background(), "getTables", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gw.Invoke(ctx, "getTables", nil)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindTimeout, te.Kind)
	assert.Equal(t, 1, calls)
}

func TestGateway_RateLimitWaitCanceled(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"result":"{}"}}`))
	}, func(c *Config) {
		c.RateLimit = 0.1
		c.Burst = 1
	})

	_, err := gw.Invoke(context.Background(), "getTables", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gw.Invoke(ctx, "getTables", nil)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindCanceled, te.Kind)
}

func TestGateway_ResponseTooLarge(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}, func(c *Config) { c.MaxResponseBytes = 16 })

	_, err := gw.Invoke(context.Background(), "searchRecords", nil)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindResponseTooLarge, te.Kind)
}

func TestGateway_CallErrors(t *testing.T) {
	t.Run("remote failure", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"result":"{\"success\":false,\"error\":\"Unknown field: Lvl\"}"}}`))
		})

		_, err := gw.Call(context.Background(), "searchRecords", nil)

		var re *RemoteError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "Unknown field: Lvl", re.Message)
	})

	t.Run("unparseable", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"result":"[Undefined]","logs":[]}}`))
		})

		_, err := gw.Call(context.Background(), "searchRecords", nil)

		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, FailedToParse, pe.Reason)
	})
}

func TestGateway_CallReassemblesChunks(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"result":"[Undefined]","logs":[
			{"args":["__RESULT_JSON_START__"]},
			{"args":["__CHUNK_1__:\"Parts\"]}"]},
			{"args":["__CHUNK_0__:{\"tables\":["]},
			{"args":["__RESULT_JSON_END__"]}
		]}}`))
	})

	data, err := gw.Call(context.Background(), "getTables", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":["Parts"]}`, string(data))
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing url", cfg: Config{Token: "t"}},
		{name: "bad scheme", cfg: Config{URL: "ftp://example.com", Token: "t"}},
		{name: "missing token", cfg: Config{URL: "https://example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, testLogger())
			assert.Error(t, err)
		})
	}

	gw, err := New(Config{URL: "https://example.com/hook", Token: "t"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenHeader, gw.cfg.TokenHeader)
	assert.Equal(t, DefaultTimeout, gw.cfg.Timeout)
}
