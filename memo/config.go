package memo

import (
	"strings"

	"xdao.co/memo/gateway"
	"xdao.co/memo/ledger"
)

// Environment keys read by ConfigFromEnv.
const (
	EnvLedgerEndpoint = "LEDGER_ENDPOINT_URL"
	EnvRecordSource   = "RECORD_SOURCE_ADDRESS"
	EnvGatewayBase    = "MEMO_GATEWAY_URL"

	// Older deployments configured a Polygon RPC and the memo contract directly.
	envLegacyLedgerEndpoint = "POLYGON_RPC_URL"
	envLegacyRecordSource   = "CONTRACT_ADDRESS"
)

// Config is the connection configuration of a Pipeline.
type Config struct {
	// LedgerEndpointURL is the JSON-RPC endpoint of the chain holding the memo contract.
	LedgerEndpointURL string
	// RecordSourceAddress is the memo contract address.
	RecordSourceAddress string
	// GatewayBaseURL is the gateway path identifiers are appended to; gateway.DefaultBase when empty.
	GatewayBaseURL string
}

// ConfigFromEnv reads Config through lookup (os.LookupEnv in production).
// Legacy keys are used only when the current key is unset or blank.
func ConfigFromEnv(lookup func(string) (string, bool)) Config {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	return Config{
		LedgerEndpointURL:   get(EnvLedgerEndpoint, envLegacyLedgerEndpoint),
		RecordSourceAddress: get(EnvRecordSource, envLegacyRecordSource),
		GatewayBaseURL:      get(EnvGatewayBase),
	}
}

// Validate fails with KindConfigurationMissing when a required setting is
// absent or the contract address is not an address.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LedgerEndpointURL) == "" {
		return newError(KindConfigurationMissing, "Missing "+EnvLedgerEndpoint, nil)
	}
	if strings.TrimSpace(c.RecordSourceAddress) == "" {
		return newError(KindConfigurationMissing, "Missing "+EnvRecordSource, nil)
	}
	if !ledger.IsAddress(c.RecordSourceAddress) {
		return newError(KindConfigurationMissing, "Invalid "+EnvRecordSource, nil)
	}
	return nil
}

func (c Config) gatewayBase() string {
	if c.GatewayBaseURL == "" {
		return gateway.DefaultBase
	}
	return c.GatewayBaseURL
}
