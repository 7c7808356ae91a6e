package tradingprovider

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Broker executes orders on a venue. An error with code ErrCodeOrderRejected
// means the venue refused the order; anything else means it could not be
// reached or answered with something unusable.
type Broker interface {
	Name() string
	PlaceOrder(ctx context.Context, order types.Order) (types.Fill, error)
	// CheckConnection verifies the venue is reachable before trading starts.
	CheckConnection(ctx context.Context) error
}

type ProviderType string

const (
	ProviderPaper        ProviderType = "paper"
	ProviderBinancePaper ProviderType = "binance-paper"
	ProviderBinanceLive  ProviderType = "binance-live"
)

type ProviderInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	IsPaperTrading bool   `json:"isPaperTrading"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderPaper: {
		Name:           string(ProviderPaper),
		DisplayName:    "Paper",
		Description:    "In-process venue that fills market orders at the signal price",
		IsPaperTrading: true,
	},
	ProviderBinancePaper: {
		Name:           string(ProviderBinancePaper),
		DisplayName:    "Binance Testnet",
		Description:    "Binance testnet for paper trading cryptocurrency without real funds",
		IsPaperTrading: true,
	},
	ProviderBinanceLive: {
		Name:           string(ProviderBinanceLive),
		DisplayName:    "Binance Live",
		Description:    "Binance live environment for real-funds cryptocurrency trading",
		IsPaperTrading: false,
	},
}

// GetSupportedProviders returns the provider names in sorted order.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	slices.Sort(providers)

	return providers
}

// GetProviderInfo returns metadata for a specific trading provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported trading provider: %s", providerName)
	}

	return info, nil
}

// GetProviderConfigSchema returns the JSON schema for a provider's configuration.
func GetProviderConfigSchema(providerName string) (string, error) {
	var config any

	switch ProviderType(providerName) {
	case ProviderPaper:
		config = &PaperConfig{}
	case ProviderBinancePaper, ProviderBinanceLive:
		config = &BinanceProviderConfig{}
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported trading provider: %s", providerName)
	}

	reflector := jsonschema.Reflector{ExpandedStruct: true}

	data, err := json.MarshalIndent(reflector.Reflect(config), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal provider schema", err)
	}

	return string(data), nil
}

// ParseProviderConfig parses a JSON configuration string for the given provider.
func ParseProviderConfig(providerName string, jsonConfig string) (any, error) {
	switch ProviderType(providerName) {
	case ProviderPaper:
		var config PaperConfig
		if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse paper config", err)
		}

		return &config, nil
	case ProviderBinancePaper, ProviderBinanceLive:
		return parseBinanceConfig(jsonConfig)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported trading provider: %s", providerName)
	}
}

// NewBroker creates the broker for providerType. fee is only used by the
// paper venue.
func NewBroker(providerType ProviderType, config any, fee commission_fee.CommissionFee, log *logger.Logger) (Broker, error) {
	switch providerType {
	case ProviderPaper:
		cfg, ok := config.(*PaperConfig)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfiguration, "invalid config type for paper provider")
		}

		return NewPaperBroker(*cfg, fee, log)
	case ProviderBinancePaper, ProviderBinanceLive:
		cfg, ok := config.(*BinanceProviderConfig)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "invalid config type for %s provider", providerType)
		}

		return NewBinanceBroker(*cfg, providerType == ProviderBinancePaper, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported trading provider: %s", providerType)
	}
}
