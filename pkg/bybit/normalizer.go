package bybit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"pulsebybit/pkg/core"
)

// bybitTicker represents the raw ticker entry from the V5 tickers endpoint.
type bybitTicker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	HighPrice string `json:"highPrice24h"`
	LowPrice  string `json:"lowPrice24h"`
	Volume    string `json:"volume24h"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
}

// bybitOrder represents the raw order shape shared by the create, cancel,
// and realtime endpoints. Create and cancel only populate the ID fields.
type bybitOrder struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	OrderStatus string `json:"orderStatus"`
	TimeInForce string `json:"timeInForce"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

// bybitBalance represents a single coin balance from the wallet endpoint.
type bybitBalance struct {
	Coin          string `json:"coin"`
	WalletBalance string `json:"walletBalance"`
	Free          string `json:"availableToWithdraw"`
	Locked        string `json:"locked"`
}

// bybitAccount represents the wallet balance response.
type bybitAccount struct {
	List []struct {
		Coin []bybitBalance `json:"coin"`
	} `json:"list"`
}

// bybitOrderBook represents the V5 orderbook response.
type bybitOrderBook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	Time   int64      `json:"ts"`
}

// Normalizer converts raw Bybit payloads to the canonical core types.
// All numeric-looking strings become apd decimals.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer instance.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizePrice extracts the last traded price from a ticker as a decimal.
func (n *Normalizer) NormalizePrice(data *bybitTicker) (*apd.Decimal, error) {
	var price apd.Decimal
	if err := parseDecimal(&price, data.LastPrice); err != nil {
		return nil, fmt.Errorf("parse last price: %w", err)
	}
	return &price, nil
}

// NormalizeTicker converts a raw ticker to a canonical Ticker.
func (n *Normalizer) NormalizeTicker(data *bybitTicker) *core.Ticker {
	ticker := &core.Ticker{
		Symbol:    data.Symbol,
		Timestamp: time.Now(),
	}

	parseDecimal(&ticker.Bid, data.Bid1Price)
	parseDecimal(&ticker.Ask, data.Ask1Price)
	parseDecimal(&ticker.Last, data.LastPrice)
	parseDecimal(&ticker.High, data.HighPrice)
	parseDecimal(&ticker.Low, data.LowPrice)
	parseDecimal(&ticker.Volume, data.Volume)

	return ticker
}

// NormalizeKline converts one raw kline row to a canonical Kline.
// V5 kline rows are arrays: [start, open, high, low, close, volume, turnover].
func (n *Normalizer) NormalizeKline(row []string, symbol string) (*core.Kline, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("kline row too short: %d fields", len(row))
	}

	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse kline start: %w", err)
	}

	kline := &core.Kline{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(start),
	}

	if err := parseDecimal(&kline.Open, row[1]); err != nil {
		return nil, fmt.Errorf("parse open: %w", err)
	}
	if err := parseDecimal(&kline.High, row[2]); err != nil {
		return nil, fmt.Errorf("parse high: %w", err)
	}
	if err := parseDecimal(&kline.Low, row[3]); err != nil {
		return nil, fmt.Errorf("parse low: %w", err)
	}
	if err := parseDecimal(&kline.Close, row[4]); err != nil {
		return nil, fmt.Errorf("parse close: %w", err)
	}
	if err := parseDecimal(&kline.Volume, row[5]); err != nil {
		return nil, fmt.Errorf("parse volume: %w", err)
	}

	return kline, nil
}

// NormalizeKlines converts raw kline rows to canonical Klines.
func (n *Normalizer) NormalizeKlines(rows [][]string, symbol string) ([]core.Kline, error) {
	klines := make([]core.Kline, 0, len(rows))
	for _, row := range rows {
		kline, err := n.NormalizeKline(row, symbol)
		if err != nil {
			return nil, fmt.Errorf("normalize kline: %w", err)
		}
		klines = append(klines, *kline)
	}
	return klines, nil
}

// NormalizeOrderBook converts a raw order book to a canonical OrderBook.
func (n *Normalizer) NormalizeOrderBook(data *bybitOrderBook) (*core.OrderBook, error) {
	orderBook := &core.OrderBook{
		Symbol:    data.Symbol,
		Timestamp: time.UnixMilli(data.Time),
	}

	bids, err := n.normalizeLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("normalize bids: %w", err)
	}
	orderBook.Bids = bids

	asks, err := n.normalizeLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("normalize asks: %w", err)
	}
	orderBook.Asks = asks

	return orderBook, nil
}

func (n *Normalizer) normalizeLevels(levels [][]string) ([]core.OrderBookLevel, error) {
	result := make([]core.OrderBookLevel, 0, len(levels))

	for _, level := range levels {
		if len(level) < 2 {
			continue
		}

		var obl core.OrderBookLevel
		if err := parseDecimal(&obl.Price, level[0]); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if err := parseDecimal(&obl.Quantity, level[1]); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}

		result = append(result, obl)
	}

	return result, nil
}

// NormalizeOrder converts a raw order to a canonical Order.
func (n *Normalizer) NormalizeOrder(data *bybitOrder) (*core.Order, error) {
	order := &core.Order{
		ID:            data.OrderID,
		ClientOrderID: data.OrderLinkID,
		Symbol:        data.Symbol,
		Side:          parseOrderSide(data.Side),
		Type:          parseOrderType(data.OrderType),
		Status:        parseOrderStatus(data.OrderStatus),
		TimeInForce:   parseTimeInForce(data.TimeInForce),
	}

	parseDecimal(&order.Price, data.Price)
	parseDecimal(&order.Quantity, data.Qty)
	parseDecimal(&order.FilledQuantity, data.CumExecQty)

	if data.CreatedTime != "" {
		if ts, err := parseMillisString(data.CreatedTime); err == nil {
			order.CreatedAt = ts
		}
	}
	if data.UpdatedTime != "" {
		if ts, err := parseMillisString(data.UpdatedTime); err == nil {
			order.UpdatedAt = ts
		}
	}

	return order, nil
}

// NormalizeOrders converts multiple raw orders to canonical Orders.
func (n *Normalizer) NormalizeOrders(data []bybitOrder) ([]core.Order, error) {
	orders := make([]core.Order, 0, len(data))
	for _, o := range data {
		order, err := n.NormalizeOrder(&o)
		if err != nil {
			return nil, fmt.Errorf("normalize order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// NormalizeBalance converts a raw coin balance to a canonical Balance.
func (n *Normalizer) NormalizeBalance(data *bybitBalance) *core.Balance {
	balance := &core.Balance{
		Asset: data.Coin,
	}

	free := data.Free
	if free == "" {
		free = data.WalletBalance
	}
	parseDecimal(&balance.Free, free)
	parseDecimal(&balance.Locked, data.Locked)

	return balance
}

// NormalizeBalances extracts all balances from a wallet response.
func (n *Normalizer) NormalizeBalances(account *bybitAccount) []core.Balance {
	var balances []core.Balance

	for _, list := range account.List {
		for _, coin := range list.Coin {
			balances = append(balances, *n.NormalizeBalance(&coin))
		}
	}

	return balances
}

func parseDecimal(dest *apd.Decimal, s string) error {
	if s == "" {
		*dest = apd.Decimal{}
		return nil
	}

	_, _, err := apd.BaseContext.SetString(dest, s)
	if err != nil {
		return fmt.Errorf("set decimal from string: %w", err)
	}

	return nil
}

func parseMillisString(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func parseOrderSide(s string) core.OrderSide {
	switch s {
	case "Sell":
		return core.SideSell
	default:
		return core.SideBuy
	}
}

func parseOrderType(s string) core.OrderType {
	switch s {
	case "Limit":
		return core.TypeLimit
	default:
		return core.TypeMarket
	}
}

func parseOrderStatus(s string) core.OrderStatus {
	switch s {
	case "New", "Created":
		return core.StatusNew
	case "PartiallyFilled":
		return core.StatusPartiallyFilled
	case "Filled":
		return core.StatusFilled
	case "Cancelled":
		return core.StatusCanceled
	case "Rejected":
		return core.StatusRejected
	case "Deactivated":
		return core.StatusExpired
	default:
		return core.StatusNew
	}
}

func parseTimeInForce(s string) core.TimeInForce {
	switch s {
	case "IOC":
		return core.IOC
	case "FOK":
		return core.FOK
	default:
		return core.GTC
	}
}
