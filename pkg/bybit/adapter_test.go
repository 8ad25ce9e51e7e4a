package bybit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsebybit/internal/keyring"
	"pulsebybit/pkg/core"
	"pulsebybit/pkg/pulse"
)

const serverTimeBody = `{"retCode":0,"retMsg":"OK","result":{"timeSecond":"1700000000","timeNano":"1700000000123456789"}}`

func testConfig() *core.Config {
	return core.DefaultConfig().WithCredentials(&core.Credentials{
		APIKey:    "test-key",
		SecretKey: "test-secret",
	})
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Adapter, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append(opts, WithBaseURL(server.URL))
	adapter, err := New(testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter, server
}

func serveTimeAnd(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/market/time" {
			io.WriteString(w, serverTimeBody)
			return
		}
		next(w, r)
	}
}

func TestNew_ValidConfig(t *testing.T) {
	adapter, err := New(testConfig())
	require.NoError(t, err)
	require.NotNil(t, adapter)

	assert.Equal(t, "bybit", adapter.Name())
	assert.Equal(t, "5", adapter.Version())
	assert.False(t, adapter.Connected())
}

func TestNew_InvalidConfig(t *testing.T) {
	adapter, err := New(&core.Config{})
	require.Error(t, err)
	require.Nil(t, adapter)
}

func TestNew_InvalidCategory(t *testing.T) {
	config := core.DefaultConfig().WithCategory("margin")
	adapter, err := New(config)
	require.Error(t, err)
	require.Nil(t, adapter)
}

func TestNew_AppliesLogLevel(t *testing.T) {
	config := testConfig()
	config.LogLevel = "debug"

	adapter, err := New(config, WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, adapter.logger.GetLevel())
}

func TestNew_InvalidLogLevel(t *testing.T) {
	config := testConfig()
	config.LogLevel = "loud"

	adapter, err := New(config)
	require.Error(t, err)
	require.Nil(t, adapter)
}

func TestBaseURL_Production(t *testing.T) {
	assert.Equal(t, "https://api.bybit.com", baseURL(core.DefaultConfig()))
}

func TestBaseURL_Testnet(t *testing.T) {
	assert.Equal(t, "https://api-testnet.bybit.com", baseURL(core.DefaultConfig().WithTestnet(true)))
}

func TestAdapter_SupportedActions(t *testing.T) {
	adapter, err := New(testConfig())
	require.NoError(t, err)

	actions := adapter.SupportedActions()
	assert.ElementsMatch(t, []pulse.Action{
		pulse.ActQueryData,
		pulse.ActTransactRequest,
		pulse.ActCancel,
		pulse.ActQueryStatus,
		pulse.ActQueryList,
		pulse.ActQueryBalance,
	}, actions)
}

func TestConnect_SetsOffset(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	err := adapter.Connect(context.Background())
	require.NoError(t, err)

	assert.True(t, adapter.Connected())
	// Server time is fixed at 2023-11-14; the offset against the present
	// must be large and negative.
	assert.Less(t, adapter.timeOffset, int64(0))
}

func TestConnect_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	adapter, err := New(testConfig(), WithBaseURL(url))
	require.NoError(t, err)

	err = adapter.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsConnectionError(err))
	assert.False(t, adapter.Connected())
}

func TestConnect_HTTPError(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := adapter.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsConnectionError(err))
}

func TestConnect_MalformedTime(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":0,"result":{"timeSecond":"not-a-number"}}`)
	})

	err := adapter.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsConnectionError(err))
}

func TestSend_BeforeConnect(t *testing.T) {
	adapter, err := New(testConfig())
	require.NoError(t, err)

	msg := pulse.NewMessage(pulse.ActQueryData, core.Params{"symbol": "BTCUSDT"})
	resp, err := adapter.Send(context.Background(), msg)
	require.Error(t, err)
	require.Nil(t, resp)
	assert.True(t, core.IsStateError(err))
}

func TestSend_TickerRoundTrip(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","lastPrice":"65000.5"}]}}`)
	}))

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActQueryData, core.Params{"symbol": "BTCUSDT"})
	resp, err := adapter.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, pulse.ActRespond, resp.Content.Action)
	assert.Equal(t, "65000.5", decimalString(t, resp.Result()))
}

func TestSend_ExchangeErrorEnvelope(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":10001,"retMsg":"params error","result":{}}`)
	}))

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActQueryData, core.Params{"symbol": "BTCUSDT"})
	resp, err := adapter.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, 10001, resp.Error.Code)
	assert.Equal(t, "params error", resp.Error.Message)
}

func TestSend_ValidationError(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the exchange")
	}))

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActTransactRequest, core.Params{"symbol": "BTCUSDT"})
	resp, err := adapter.Send(context.Background(), msg)
	require.Error(t, err)
	require.Nil(t, resp)
	assert.True(t, core.IsValidationError(err))
}

func TestSend_TransportError(t *testing.T) {
	adapter, server := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":0,"result":{"list":[]}}`)
	}))

	require.NoError(t, adapter.Connect(context.Background()))
	server.Close()

	msg := pulse.NewMessage(pulse.ActQueryBalance, nil)
	resp, err := adapter.Send(context.Background(), msg)
	require.Error(t, err)
	require.Nil(t, resp)
	assert.True(t, core.IsTransportError(err))
}

func TestSend_SignedGetHeaders(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/account/wallet-balance", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))
		assert.Equal(t, "20000", r.Header.Get("X-BAPI-RECV-WINDOW"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))

		// The signature must cover exactly the query string that arrived.
		signer := NewSigner("test-key", "test-secret")
		want, err := signer.Sign(r.Header.Get("X-BAPI-TIMESTAMP"), "20000", r.URL.RawQuery)
		require.NoError(t, err)
		assert.Equal(t, want, r.Header.Get("X-BAPI-SIGN"))

		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`)
	}))

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActQueryBalance, nil)
	resp, err := adapter.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestSend_SignedPostBodyBytes(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/order/create", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		// The signature must cover exactly the body bytes that arrived.
		signer := NewSigner("test-key", "test-secret")
		want, err := signer.Sign(r.Header.Get("X-BAPI-TIMESTAMP"), "20000", string(body))
		require.NoError(t, err)
		assert.Equal(t, want, r.Header.Get("X-BAPI-SIGN"))

		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"orderId":"abc123"}}`)
	}))

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActTransactRequest, core.Params{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"quantity": "0.001",
	})
	resp, err := adapter.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	order, ok := resp.Result().(*core.Order)
	require.True(t, ok)
	assert.Equal(t, "abc123", order.ID)
}

func TestSend_NoCredentials(t *testing.T) {
	server := httptest.NewServer(serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no signed request should reach the exchange")
	}))
	t.Cleanup(server.Close)

	adapter, err := New(core.DefaultConfig(), WithBaseURL(server.URL))
	require.NoError(t, err)

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActQueryBalance, nil)
	resp, err := adapter.Send(context.Background(), msg)
	require.Error(t, err)
	require.Nil(t, resp)
	assert.True(t, core.IsValidationError(err))
}

func TestSend_KeyRingCredentials(t *testing.T) {
	kr := keyring.NewKeyRing([]*keyring.APIKey{
		{ID: "ring", Key: "ring-key", Secret: "ring-secret"},
	}, keyring.RotationRoundRobin)

	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ring-key", r.Header.Get("X-BAPI-API-KEY"))
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`)
	}), WithKeyRing(kr))

	require.NoError(t, adapter.Connect(context.Background()))

	msg := pulse.NewMessage(pulse.ActQueryBalance, nil)
	resp, err := adapter.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, kr.Current())
	assert.False(t, kr.Current().LastUsed.IsZero())
}

func TestReconnect_RefreshesOffset(t *testing.T) {
	adapter, _ := newTestAdapter(t, serveTimeAnd(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	require.NoError(t, adapter.Connect(context.Background()))
	first := adapter.timeOffset

	require.NoError(t, adapter.Connect(context.Background()))
	assert.True(t, adapter.Connected())
	// Same fixed server time, later local clock: offset drifts downward.
	assert.LessOrEqual(t, adapter.timeOffset, first)
}
