// Package bybit adapts the PULSE semantic trading protocol to the Bybit V5
// unified REST API. It maps the fixed PULSE action set onto market data,
// order, and account endpoints, signs private requests with HMAC-SHA256,
// and translates responses back into PULSE envelopes.
//
// Bybit API documentation: https://bybit-exchange.github.io/docs/v5/intro
package bybit
