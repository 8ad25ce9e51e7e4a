package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	httpClient "pulsebybit/internal/http"
	"pulsebybit/internal/keyring"
	"pulsebybit/pkg/core"
	"pulsebybit/pkg/pulse"
)

// Adapter translates PULSE messages into Bybit V5 API calls. It owns the
// credentials, the testnet/category configuration, and the session time
// offset established by Connect.
//
// Session state is read-mostly after Connect. The adapter performs no
// internal locking: callers may Send from multiple goroutines, but must
// serialize Connect against in-flight sends.
type Adapter struct {
	config     *core.Config
	keyRing    *keyring.KeyRing
	httpClient *httpClient.Client
	protocol   *Protocol
	logger     zerolog.Logger

	// timeOffset is server time minus local time in milliseconds,
	// established by the most recent successful Connect.
	timeOffset int64
	connected  bool
}

// Option is a functional option for configuring the Adapter.
type Option func(*Options)

// Options holds configuration options for the Adapter.
type Options struct {
	KeyRing *keyring.KeyRing
	Logger  zerolog.Logger
	BaseURL string
}

// WithKeyRing returns an option that sets the API key ring for key rotation.
func WithKeyRing(kr *keyring.KeyRing) Option {
	return func(o *Options) {
		o.KeyRing = kr
	}
}

// WithLogger returns an option that sets the logger for the adapter.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithBaseURL overrides the derived API base URL. Intended for tests and
// proxies.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// New creates an Adapter in the Disconnected state.
func New(config *core.Config, opts ...Option) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if config.LogLevel != "" {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		logger = logger.Level(level)
	}

	apiURL := options.BaseURL
	if apiURL == "" {
		apiURL = baseURL(config)
	}

	client, err := httpClient.NewClient(&httpClient.Config{
		BaseURL: apiURL,
		Timeout: config.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	return &Adapter{
		config:     config,
		keyRing:    options.KeyRing,
		httpClient: client,
		protocol:   NewProtocol(),
		logger:     logger,
	}, nil
}

// baseURL returns the API base URL for the configured environment.
func baseURL(config *core.Config) string {
	if config.Testnet {
		return TestnetURL
	}
	return ProductionURL
}

// Name returns the adapter identifier "bybit".
func (a *Adapter) Name() string {
	return "bybit"
}

// Version returns the Bybit API version.
func (a *Adapter) Version() string {
	return "5"
}

// Connected reports whether a successful Connect has established a time offset.
func (a *Adapter) Connected() bool {
	return a.connected
}

// SupportedActions returns the PULSE actions this adapter can execute.
func (a *Adapter) SupportedActions() []pulse.Action {
	return pulse.Actions()
}

// Close releases the underlying HTTP client.
func (a *Adapter) Close() error {
	a.connected = false
	return a.httpClient.Close()
}

// Connect performs the one-time server-time synchronization. Every signed
// request afterwards is stamped with local time plus the stored offset, so
// no Send is accepted until Connect succeeds. Calling Connect again
// refreshes the offset.
func (a *Adapter) Connect(ctx context.Context) error {
	serverTime := endpoints[opServerTime]

	resp, err := a.httpClient.Get(ctx, serverTime.Path)
	if err != nil {
		return core.NewConnectionError(serverTime.Path, err)
	}
	if resp.StatusCode() >= 400 {
		return core.NewConnectionError(serverTime.Path,
			fmt.Errorf("HTTP error %d", resp.StatusCode()))
	}

	var body struct {
		Result struct {
			TimeSecond string `json:"timeSecond"`
		} `json:"result"`
	}
	if err := sonic.Unmarshal(resp.Bytes(), &body); err != nil {
		return core.NewConnectionError(serverTime.Path,
			fmt.Errorf("unmarshal server time: %w", err))
	}

	sec, err := strconv.ParseInt(body.Result.TimeSecond, 10, 64)
	if err != nil {
		return core.NewConnectionError(serverTime.Path,
			fmt.Errorf("parse server time %q: %w", body.Result.TimeSecond, err))
	}

	a.timeOffset = sec*1000 - time.Now().UnixMilli()
	a.connected = true

	a.logger.Info().
		Bool("testnet", a.config.Testnet).
		Str("category", a.config.Category).
		Int64("time_offset_ms", a.timeOffset).
		Msg("connected to bybit")

	return nil
}

// Send executes one PULSE message as a single best-effort API call and
// returns the translated envelope. Pre-flight failures (validation, state)
// and transport failures are returned as errors; exchange-reported business
// errors come back inside a failed envelope.
func (a *Adapter) Send(ctx context.Context, msg *pulse.Message) (*pulse.Response, error) {
	if !a.connected {
		return nil, core.NewStateError("send", core.ErrNotConnected)
	}
	if msg == nil {
		return nil, core.NewValidationError("", "nil message")
	}

	req, err := a.protocol.BuildRequest(msg, a.config.Category)
	if err != nil {
		return nil, err
	}

	resp, err := a.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	return a.protocol.ParseResponse(req.Operation, resp.statusCode, resp.body)
}

type rawResponse struct {
	statusCode int
	body       []byte
}

func (a *Adapter) execute(ctx context.Context, req *Request) (*rawResponse, error) {
	query := req.Query.Encode()

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = sonic.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	var opts []httpClient.RequestOption

	if req.Signed {
		creds, err := a.credentials()
		if err != nil {
			return nil, err
		}

		// Sign exactly what goes on the wire: the encoded query string
		// for GET, the marshaled body bytes for POST.
		payload := query
		if req.Method == "POST" {
			payload = string(bodyBytes)
		}

		timestamp := strconv.FormatInt(time.Now().UnixMilli()+a.timeOffset, 10)
		headers, err := NewSigner(creds.APIKey, creds.SecretKey).
			Headers(timestamp, a.config.RecvWindow, payload)
		if err != nil {
			return nil, core.NewValidationError("credentials", err.Error())
		}

		opts = append(opts, httpClient.WithHeaders(headers))
	}

	url := req.Path
	if query != "" {
		url = req.Path + "?" + query
	}

	var resp *resty.Response
	var err error

	switch req.Method {
	case "POST":
		opts = append(opts, httpClient.WithHeader("Content-Type", "application/json"))
		resp, err = a.httpClient.Post(ctx, url, bodyBytes, opts...)
	default:
		resp, err = a.httpClient.Get(ctx, url, opts...)
	}

	if req.Signed && a.keyRing != nil {
		if err != nil {
			a.keyRing.OnError(err)
		} else {
			a.keyRing.MarkUsed()
		}
	}

	if err != nil {
		return nil, core.NewTransportError(err)
	}

	return &rawResponse{
		statusCode: resp.StatusCode(),
		body:       resp.Bytes(),
	}, nil
}

// credentials resolves the signing credentials, preferring the key ring
// when one is configured.
func (a *Adapter) credentials() (core.Credentials, error) {
	if a.keyRing != nil {
		key := a.keyRing.Current()
		if key == nil {
			return core.Credentials{}, core.NewValidationError("credentials",
				core.ErrNoCredentials.Error())
		}
		return core.Credentials{APIKey: key.Key, SecretKey: key.Secret}, nil
	}

	if a.config.Credentials == nil {
		return core.Credentials{}, core.NewValidationError("credentials",
			core.ErrNoCredentials.Error())
	}
	return *a.config.Credentials, nil
}
