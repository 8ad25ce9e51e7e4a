package bybit

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"pulsebybit/pkg/core"
	"pulsebybit/pkg/pulse"
)

// Base URLs for the Bybit V5 API.
const (
	ProductionURL = "https://api.bybit.com"
	TestnetURL    = "https://api-testnet.bybit.com"
)

// operation identifies a concrete Bybit endpoint invocation resolved from
// a PULSE action and its query sub-type.
type operation int

const (
	opTickerPrice operation = iota
	opTicker24h
	opKlines
	opOrderBook
	opPlaceOrder
	opCancelOrder
	opOrderStatus
	opOpenOrders
	opWalletBalance
	opServerTime
)

// String returns the string representation of the operation.
func (o operation) String() string {
	return [...]string{
		"TICKER_PRICE",
		"TICKER_24H",
		"KLINES",
		"ORDER_BOOK",
		"PLACE_ORDER",
		"CANCEL_ORDER",
		"ORDER_STATUS",
		"OPEN_ORDERS",
		"WALLET_BALANCE",
		"SERVER_TIME",
	}[o]
}

// descriptor is a static endpoint description: HTTP method, path, whether
// the call must be signed, and the parameters a validating message must carry.
type descriptor struct {
	Method   string
	Path     string
	Signed   bool
	Required []string
}

// endpoints is the fixed operation → endpoint table. Defined once, never mutated.
var endpoints = map[operation]descriptor{
	opTickerPrice:   {http.MethodGet, "/v5/market/tickers", false, nil},
	opTicker24h:     {http.MethodGet, "/v5/market/tickers", false, nil},
	opKlines:        {http.MethodGet, "/v5/market/kline", false, []string{"symbol"}},
	opOrderBook:     {http.MethodGet, "/v5/market/orderbook", false, []string{"symbol"}},
	opPlaceOrder:    {http.MethodPost, "/v5/order/create", true, []string{"symbol", "side", "quantity"}},
	opCancelOrder:   {http.MethodPost, "/v5/order/cancel", true, []string{"symbol", "order_id"}},
	opOrderStatus:   {http.MethodGet, "/v5/order/realtime", true, []string{"symbol", "order_id"}},
	opOpenOrders:    {http.MethodGet, "/v5/order/realtime", true, nil},
	opWalletBalance: {http.MethodGet, "/v5/account/wallet-balance", true, nil},
	opServerTime:    {http.MethodGet, "/v5/market/time", false, nil},
}

// Request is a fully built, transport-ready request. Given the same message
// and session state the builder produces identical output modulo timestamp.
type Request struct {
	Operation operation
	Method    string
	Path      string
	// Query holds GET parameters; its deterministic encoding is both sent
	// and signed.
	Query url.Values
	// Body holds the POST payload struct; it is marshaled exactly once so
	// the signed bytes match the transmitted bytes.
	Body   any
	Signed bool
}

// orderCreateBody is the POST payload for order placement. Field order fixes
// the serialized key order, keeping signatures reproducible.
type orderCreateBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// orderCancelBody is the POST payload for order cancellation.
type orderCancelBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	OrderID     string `json:"orderId,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// Protocol translates PULSE messages into Bybit V5 requests and Bybit
// responses back into PULSE envelopes.
type Protocol struct {
	normalizer *Normalizer
}

// NewProtocol creates a new Bybit protocol instance.
func NewProtocol() *Protocol {
	return &Protocol{normalizer: NewNormalizer()}
}

// Resolve maps a PULSE action (and the query sub-type for ACT.QUERY.DATA)
// onto a Bybit operation.
func (p *Protocol) Resolve(msg *pulse.Message) (operation, error) {
	switch msg.Action {
	case pulse.ActQueryData:
		switch queryType := msg.StringParam("type"); queryType {
		case "", "price":
			return opTickerPrice, nil
		case "24h":
			return opTicker24h, nil
		case "klines":
			return opKlines, nil
		case "depth":
			return opOrderBook, nil
		default:
			return 0, core.NewValidationError("type",
				fmt.Sprintf("unknown query type %q: use price, 24h, klines, depth", queryType))
		}
	case pulse.ActTransactRequest:
		return opPlaceOrder, nil
	case pulse.ActCancel:
		return opCancelOrder, nil
	case pulse.ActQueryStatus:
		return opOrderStatus, nil
	case pulse.ActQueryList:
		return opOpenOrders, nil
	case pulse.ActQueryBalance:
		return opWalletBalance, nil
	default:
		return 0, core.NewValidationError("action",
			fmt.Sprintf("unsupported action %q", msg.Action))
	}
}

// BuildRequest resolves the message to an endpoint and assembles the request
// parameters. Required-parameter checks run only when the message has
// validation enabled; otherwise the exchange is trusted to reject bad input.
func (p *Protocol) BuildRequest(msg *pulse.Message, category string) (*Request, error) {
	op, err := p.Resolve(msg)
	if err != nil {
		return nil, err
	}

	desc := endpoints[op]

	if msg.Validate {
		for _, param := range desc.Required {
			if _, ok := msg.Param(param); !ok {
				return nil, core.MissingParamError(param)
			}
		}
	}

	if c := msg.StringParam("category"); c != "" {
		category = c
	}

	req := &Request{
		Operation: op,
		Method:    desc.Method,
		Path:      desc.Path,
		Query:     url.Values{},
		Signed:    desc.Signed,
	}

	switch op {
	case opTickerPrice, opTicker24h:
		req.Query.Set("category", category)
		if symbol := msg.StringParam("symbol"); symbol != "" {
			req.Query.Set("symbol", strings.ToUpper(symbol))
		}

	case opKlines:
		req.Query.Set("category", category)
		req.Query.Set("symbol", strings.ToUpper(msg.StringParam("symbol")))
		req.Query.Set("interval", paramOrDefault(msg, "interval", "60"))
		req.Query.Set("limit", paramOrDefault(msg, "limit", "100"))

	case opOrderBook:
		req.Query.Set("category", category)
		req.Query.Set("symbol", strings.ToUpper(msg.StringParam("symbol")))
		req.Query.Set("limit", paramOrDefault(msg, "limit", "20"))

	case opPlaceOrder:
		body, err := p.buildOrderBody(msg, category)
		if err != nil {
			return nil, err
		}
		req.Body = body

	case opCancelOrder:
		req.Body = &orderCancelBody{
			Category:    category,
			Symbol:      strings.ToUpper(msg.StringParam("symbol")),
			OrderID:     msg.StringParam("order_id"),
			OrderLinkID: msg.StringParam("client_order_id"),
		}

	case opOrderStatus, opOpenOrders:
		req.Query.Set("category", category)
		if symbol := msg.StringParam("symbol"); symbol != "" {
			req.Query.Set("symbol", strings.ToUpper(symbol))
		}
		if orderID := msg.StringParam("order_id"); orderID != "" {
			req.Query.Set("orderId", orderID)
		}

	case opWalletBalance:
		req.Query.Set("accountType", paramOrDefault(msg, "account_type", "UNIFIED"))
	}

	return req, nil
}

func (p *Protocol) buildOrderBody(msg *pulse.Message, category string) (*orderCreateBody, error) {
	side, err := mapSide(msg.StringParam("side"))
	if err != nil && msg.Validate {
		return nil, err
	}

	orderType := capitalize(paramOrDefault(msg, "order_type", "Market"))

	body := &orderCreateBody{
		Category:    category,
		Symbol:      strings.ToUpper(msg.StringParam("symbol")),
		Side:        side,
		OrderType:   orderType,
		Qty:         msg.StringParam("quantity"),
		OrderLinkID: msg.StringParam("client_order_id"),
	}

	if orderType == "Limit" {
		price := msg.StringParam("price")
		if price == "" && msg.Validate {
			return nil, core.NewValidationError("price", "price required for LIMIT orders")
		}
		body.Price = price
		body.TimeInForce = strings.ToUpper(paramOrDefault(msg, "time_in_force", "GTC"))
	}

	return body, nil
}

// ParseResponse translates an exchange reply into a PULSE envelope.
// Exchange-reported failures (non-zero retCode, non-2xx status) come back as
// failed envelopes; only unparseable payloads surface as errors.
func (p *Protocol) ParseResponse(op operation, statusCode int, body []byte) (*pulse.Response, error) {
	var base struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  any    `json:"result"`
	}
	if err := sonic.Unmarshal(body, &base); err != nil {
		// Gateways answer HTTP errors with HTML pages; fall back to a
		// generic status-code error rather than failing on the payload.
		if statusCode >= 400 {
			return pulse.NewErrorResponse(
				core.NewExchangeError(0, statusCode,
					fmt.Sprintf("HTTP error %d", statusCode))), nil
		}
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if base.RetCode != 0 {
		return pulse.NewErrorResponse(
			core.NewExchangeError(base.RetCode, statusCode, base.RetMsg)), nil
	}
	if statusCode >= 400 {
		return pulse.NewErrorResponse(
			core.NewExchangeError(0, statusCode,
				fmt.Sprintf("HTTP error %d", statusCode))), nil
	}

	resultBytes, err := sonic.Marshal(base.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	result, err := p.normalizeResult(op, resultBytes)
	if err != nil {
		return nil, err
	}

	return pulse.NewResponse(result), nil
}

func (p *Protocol) normalizeResult(op operation, resultBytes []byte) (any, error) {
	switch op {
	case opTickerPrice:
		var data struct {
			List []bybitTicker `json:"list"`
		}
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal ticker: %w", err)
		}
		if len(data.List) == 0 {
			return nil, fmt.Errorf("no ticker data")
		}
		return p.normalizer.NormalizePrice(&data.List[0])

	case opTicker24h:
		var data struct {
			List []bybitTicker `json:"list"`
		}
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal ticker: %w", err)
		}
		if len(data.List) == 0 {
			return nil, fmt.Errorf("no ticker data")
		}
		return p.normalizer.NormalizeTicker(&data.List[0]), nil

	case opKlines:
		var data struct {
			Symbol string     `json:"symbol"`
			List   [][]string `json:"list"`
		}
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal klines: %w", err)
		}
		return p.normalizer.NormalizeKlines(data.List, data.Symbol)

	case opOrderBook:
		var data bybitOrderBook
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order book: %w", err)
		}
		return p.normalizer.NormalizeOrderBook(&data)

	case opPlaceOrder, opCancelOrder:
		var data bybitOrder
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		return p.normalizer.NormalizeOrder(&data)

	case opOrderStatus:
		var data struct {
			List []bybitOrder `json:"list"`
		}
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		if len(data.List) == 0 {
			return nil, fmt.Errorf("no order data")
		}
		return p.normalizer.NormalizeOrder(&data.List[0])

	case opOpenOrders:
		var data struct {
			List []bybitOrder `json:"list"`
		}
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		return p.normalizer.NormalizeOrders(data.List)

	case opWalletBalance:
		var data bybitAccount
		if err := sonic.Unmarshal(resultBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal account: %w", err)
		}
		return p.normalizer.NormalizeBalances(&data), nil

	default:
		var result any
		if err := sonic.Unmarshal(resultBytes, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		return result, nil
	}
}

func paramOrDefault(msg *pulse.Message, key, def string) string {
	if v := msg.StringParam(key); v != "" {
		return v
	}
	return def
}

func mapSide(side string) (string, error) {
	switch strings.ToUpper(side) {
	case "BUY":
		return "Buy", nil
	case "SELL":
		return "Sell", nil
	default:
		return "", core.NewValidationError("side",
			fmt.Sprintf("unknown side %q: use BUY or SELL", side))
	}
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
