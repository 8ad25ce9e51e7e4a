package core

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Params is a generic string-keyed parameter map carried by PULSE messages
// and request builders.
type Params map[string]any

// Credentials holds API authentication credentials for the exchange.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key"`
	// SecretKey is the private key used for request signing.
	SecretKey string `json:"secret_key"`
}

// String returns a representation safe for logging; the secret is never echoed.
func (c Credentials) String() string {
	return "Credentials{APIKey:" + MaskKey(c.APIKey) + "}"
}

// MaskKey obscures all but the first and last four characters of a key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Config contains all configuration options for the adapter.
// It is read at construction and connect time and must not be mutated afterwards.
type Config struct {
	// Testnet switches the base URL to the Bybit testnet.
	Testnet bool `json:"testnet"`
	// Category scopes requests to a product line: spot, linear, or inverse.
	Category string `json:"category" validate:"required,oneof=spot linear inverse"`
	// Credentials are required only for signed operations.
	Credentials *Credentials `json:"credentials,omitempty"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`
	// RecvWindow is the signed-request receive window in milliseconds,
	// transmitted as a string per the Bybit V5 contract.
	RecvWindow string `json:"recv_window" validate:"required,number"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config with sensible defaults: spot category,
// 10s timeout, 20000ms receive window.
func DefaultConfig() *Config {
	return &Config{
		Testnet:    false,
		Category:   "spot",
		Timeout:    10 * time.Second,
		RecvWindow: "20000",
		LogLevel:   "info",
	}
}

var validate = validator.New()

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithTestnet enables or disables testnet mode and returns the config for chaining.
func (c *Config) WithTestnet(testnet bool) *Config {
	c.Testnet = testnet
	return c
}

// WithCategory sets the product category and returns the config for chaining.
func (c *Config) WithCategory(category string) *Config {
	c.Category = category
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRecvWindow sets the signed-request receive window and returns the config for chaining.
func (c *Config) WithRecvWindow(window string) *Config {
	c.RecvWindow = window
	return c
}
