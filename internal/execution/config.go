package execution

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

// FillPolicy controls when an approved order is executed.
type FillPolicy string

const (
	// FillPolicyNextOpen fills at the open of the bar after the signal bar.
	FillPolicyNextOpen FillPolicy = "next_open"
	// FillPolicySignalClose fills immediately at the signal bar's close.
	FillPolicySignalClose FillPolicy = "signal_close"
)

type Config struct {
	FillPolicy FillPolicy            `yaml:"fill_policy" json:"fill_policy" jsonschema:"title=Fill Policy,description=When approved orders fill,enum=next_open,enum=signal_close,default=next_open" validate:"oneof=next_open signal_close"`
	FeeModel   commission_fee.Broker `yaml:"fee_model" json:"fee_model" jsonschema:"title=Fee Model,description=Commission model applied to every fill,enum=percentage,enum=interactive_broker,enum=zero_commission,default=percentage" validate:"oneof=percentage interactive_broker zero_commission"`
	// FeeRate is the fraction of notional charged by the percentage model.
	FeeRate float64 `yaml:"fee_rate" json:"fee_rate" jsonschema:"title=Fee Rate,description=Fraction of notional charged per fill,minimum=0,exclusiveMaximum=1,default=0.001" validate:"gte=0,lt=1"`
	// StaleAfter cancels a pending order whose next bar arrives later than this. 0 disables the check.
	StaleAfter time.Duration `yaml:"stale_after" json:"stale_after" jsonschema:"title=Stale After,description=Maximum gap between signal and fill bar in nanoseconds,minimum=0,default=0" validate:"gte=0"`
	// MaxSlippagePct rejects fills whose open moved further than this from the signal price. 0 disables the check.
	MaxSlippagePct float64 `yaml:"max_slippage_pct" json:"max_slippage_pct" jsonschema:"title=Max Slippage,description=Maximum relative move between signal price and fill price,minimum=0,default=0" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		FillPolicy:     FillPolicyNextOpen,
		FeeModel:       commission_fee.BrokerPercentage,
		FeeRate:        0.001,
		StaleAfter:     0,
		MaxSlippagePct: 0,
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid execution config", err)
	}

	return nil
}

// CommissionFee builds the configured fee model.
func (c Config) CommissionFee() (commission_fee.CommissionFee, error) {
	return commission_fee.GetCommissionFeeHandler(c.FeeModel, c.FeeRate)
}
