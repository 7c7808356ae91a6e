package tradingprovider

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// Environment variables read by BinanceConfigFromEnv.
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvBinanceBaseURL   = "BINANCE_BASE_URL"
)

// BinanceProviderConfig contains configuration for Binance trading.
type BinanceProviderConfig struct {
	ApiKey    string `json:"apiKey" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey string `json:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	// BaseURL overrides the REST endpoint, for testnet mirrors or proxies.
	BaseURL          string `json:"baseUrl,omitempty" jsonschema:"title=Base URL,description=Override for the REST endpoint" validate:"omitempty,url"`
	DecimalPrecision int    `json:"decimalPrecision,omitempty" jsonschema:"title=Decimal Precision,description=Lot precision for order quantities,minimum=0,maximum=16" validate:"gte=0,lte=16"`
}

// Validate validates the BinanceProviderConfig struct.
func (c *BinanceProviderConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance provider config", err)
	}

	return nil
}

// BinanceConfigFromEnv reads the API keys from the environment, typically
// populated from a .env file.
func BinanceConfigFromEnv() (*BinanceProviderConfig, error) {
	config := BinanceProviderConfig{
		ApiKey:    os.Getenv(EnvBinanceAPIKey),
		SecretKey: os.Getenv(EnvBinanceSecretKey),
		BaseURL:   os.Getenv(EnvBinanceBaseURL),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// parseBinanceConfig parses a JSON configuration string into a BinanceProviderConfig.
func parseBinanceConfig(jsonConfig string) (*BinanceProviderConfig, error) {
	var config BinanceProviderConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse binance config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
