// Package pulse defines the PULSE semantic trading message protocol:
// a small closed set of actions, a generic parameter-carrying message,
// and the response envelope adapters translate exchange replies into.
package pulse

import (
	"fmt"

	"pulsebybit/pkg/core"
)

// Action identifies a PULSE semantic operation.
type Action string

// The closed set of PULSE actions.
const (
	// ActQueryData requests market data: ticker price, klines, or order book.
	ActQueryData Action = "ACT.QUERY.DATA"
	// ActTransactRequest places an order.
	ActTransactRequest Action = "ACT.TRANSACT.REQUEST"
	// ActCancel cancels an existing order.
	ActCancel Action = "ACT.CANCEL"
	// ActQueryStatus queries the status of a single order.
	ActQueryStatus Action = "ACT.QUERY.STATUS"
	// ActQueryList lists open orders.
	ActQueryList Action = "ACT.QUERY.LIST"
	// ActQueryBalance queries wallet balances.
	ActQueryBalance Action = "ACT.QUERY.BALANCE"
	// ActRespond carries a reply back to the caller.
	ActRespond Action = "ACT.RESPOND"
)

// Actions returns the request actions an adapter can be asked to perform.
func Actions() []Action {
	return []Action{
		ActQueryData,
		ActTransactRequest,
		ActCancel,
		ActQueryStatus,
		ActQueryList,
		ActQueryBalance,
	}
}

// Valid reports whether the action belongs to the request action set.
func (a Action) Valid() bool {
	switch a {
	case ActQueryData, ActTransactRequest, ActCancel,
		ActQueryStatus, ActQueryList, ActQueryBalance:
		return true
	}
	return false
}

// String returns the wire representation of the action.
func (a Action) String() string {
	return string(a)
}

// Message is a PULSE request. It is immutable once constructed and
// consumed once per Send.
type Message struct {
	// Action is one of the closed PULSE action set.
	Action Action `json:"action"`
	// Parameters carries the action-specific parameters.
	Parameters core.Params `json:"parameters"`
	// Validate controls local required-parameter checking. When false,
	// only minimal shape checks are performed and the exchange is trusted
	// to reject bad requests.
	Validate bool `json:"validate"`
}

// NewMessage creates a Message with local validation enabled.
func NewMessage(action Action, params core.Params) *Message {
	if params == nil {
		params = make(core.Params)
	}
	return &Message{
		Action:     action,
		Parameters: params,
		Validate:   true,
	}
}

// WithoutValidation disables local required-parameter checking and returns
// the message for chaining. This is an escape hatch for callers that prefer
// exchange-side validation.
func (m *Message) WithoutValidation() *Message {
	m.Validate = false
	return m
}

// Param returns the named parameter and whether it was present.
func (m *Message) Param(key string) (any, bool) {
	v, ok := m.Parameters[key]
	return v, ok
}

// StringParam returns the named parameter coerced to a string.
// Numeric values are formatted; absent values yield the empty string.
func (m *Message) StringParam(key string) string {
	v, ok := m.Parameters[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Content is the payload of a response envelope.
type Content struct {
	// Action is always ActRespond for adapter replies.
	Action Action `json:"action"`
	// Parameters holds the normalized result under the "result" key.
	Parameters core.Params `json:"parameters"`
}

// Response is the envelope an adapter returns for every exchange reply.
// Exchange-reported business errors are carried here, not raised.
type Response struct {
	// Success is true when the exchange reported a zero result code.
	Success bool `json:"success"`
	// Content carries the normalized result payload.
	Content Content `json:"content"`
	// Error holds the structured exchange error when Success is false.
	Error *core.ExchangeError `json:"error,omitempty"`
}

// Result returns the normalized result value from a successful envelope.
func (r *Response) Result() any {
	return r.Content.Parameters["result"]
}

// NewResponse creates a successful envelope carrying the given result.
func NewResponse(result any) *Response {
	return &Response{
		Success: true,
		Content: Content{
			Action:     ActRespond,
			Parameters: core.Params{"result": result},
		},
	}
}

// NewErrorResponse creates a failed envelope carrying the exchange error.
func NewErrorResponse(err *core.ExchangeError) *Response {
	return &Response{
		Success: false,
		Content: Content{
			Action:     ActRespond,
			Parameters: core.Params{},
		},
		Error: err,
	}
}
