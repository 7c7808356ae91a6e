package marketdata

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/marketdata/provider"
)

// ProviderInfo contains metadata about a bar source.
type ProviderInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requiresAuth"`
	// Live sources stream until cancelled; the others replay a fixed range.
	Live bool `json:"live"`
}

var providerRegistry = map[provider.ProviderType]ProviderInfo{
	provider.ProviderFile: {
		Name:        string(provider.ProviderFile),
		DisplayName: "Local file",
		Description: "Parquet or CSV bars read through DuckDB",
	},
	provider.ProviderBinance: {
		Name:        string(provider.ProviderBinance),
		DisplayName: "Binance",
		Description: "Historical spot klines from the Binance REST API",
	},
	provider.ProviderPolygon: {
		Name:         string(provider.ProviderPolygon),
		DisplayName:  "Polygon.io",
		Description:  "Historical aggregates from Polygon.io",
		RequiresAuth: true,
	},
	provider.ProviderBinanceStream: {
		Name:        string(provider.ProviderBinanceStream),
		DisplayName: "Binance websocket",
		Description: "Finalized spot klines from the Binance websocket",
		Live:        true,
	},
	provider.ProviderBybitStream: {
		Name:        string(provider.ProviderBybitStream),
		DisplayName: "Bybit websocket",
		Description: "Confirmed spot klines from the Bybit v5 public websocket",
		Live:        true,
	},
}

// GetSupportedProviders returns the sorted names of every bar source.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	sort.Strings(providers)

	return providers
}

func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[provider.ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported market data provider: %s", providerName)
	}

	return info, nil
}

// GetConfigSchema returns the JSON schema of a provider's configuration.
func GetConfigSchema(providerName string) (string, error) {
	info, err := GetProviderInfo(providerName)
	if err != nil {
		return "", err
	}

	var config any = provider.HistoryConfig{}

	switch {
	case provider.ProviderType(providerName) == provider.ProviderFile:
		config = provider.FileConfig{}
	case info.Live:
		config = provider.StreamConfig{}
	}

	reflector := jsonschema.Reflector{ExpandedStruct: true}

	data, err := json.MarshalIndent(reflector.Reflect(config), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal provider schema", err)
	}

	return string(data), nil
}

// NewHistorySource builds a replayable source. apiKey is only read by polygon.
func NewHistorySource(providerType provider.ProviderType, config provider.HistoryConfig, apiKey string, log *logger.Logger) (provider.Source, error) {
	switch providerType {
	case provider.ProviderBinance:
		return provider.NewBinanceSource(config, log)
	case provider.ProviderPolygon:
		return provider.NewPolygonSource(apiKey, config, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "%s is not a historical market data provider", providerType)
	}
}

// NewLiveSource builds a streaming source. paper selects the exchange testnet.
func NewLiveSource(providerType provider.ProviderType, config provider.StreamConfig, paper bool, log *logger.Logger) (provider.Source, error) {
	switch providerType {
	case provider.ProviderBinanceStream:
		return provider.NewBinanceStream(config, paper, log)
	case provider.ProviderBybitStream:
		return provider.NewBybitStream(config, paper, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "%s is not a live market data provider", providerType)
	}
}
