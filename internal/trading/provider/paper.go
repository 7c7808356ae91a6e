package tradingprovider

import (
	"context"
	"sync"

	"github.com/rxtech-lab/argo-strategy-engine/internal/execution/commission_fee"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/internal/utils"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"go.uber.org/zap"
)

// PaperConfig configures the in-process paper venue.
type PaperConfig struct {
	InitialCash      float64 `json:"initialCash" jsonschema:"title=Initial Cash,description=Quote balance of the paper account,minimum=0" validate:"gt=0"`
	DecimalPrecision int     `json:"decimalPrecision,omitempty" jsonschema:"title=Decimal Precision,description=Lot precision for order quantities,minimum=0,maximum=16" validate:"gte=0,lte=16"`
}

// PaperBroker fills every market order at its signal price and keeps its own
// quote and base balances, so an order the account cannot cover is rejected
// the way a venue would reject it.
type PaperBroker struct {
	mu        sync.Mutex
	fee       commission_fee.CommissionFee
	precision int
	cash      float64
	holdings  float64
	logger    *logger.Logger
}

var _ Broker = (*PaperBroker)(nil)

func NewPaperBroker(config PaperConfig, fee commission_fee.CommissionFee, log *logger.Logger) (*PaperBroker, error) {
	if config.InitialCash <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "paper broker initial cash must be positive, got %v", config.InitialCash)
	}

	if fee == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "paper broker requires a fee model")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	precision := config.DecimalPrecision
	if precision == 0 {
		precision = BinanceDecimalPrecision
	}

	return &PaperBroker{
		fee:       fee,
		precision: precision,
		cash:      config.InitialCash,
		logger:    log.Named("paper"),
	}, nil
}

func (p *PaperBroker) Name() string {
	return string(ProviderPaper)
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, order types.Order) (types.Fill, error) {
	if err := ctx.Err(); err != nil {
		return types.Fill{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	quantity := utils.RoundToDecimalPrecision(order.RequestedQuantity, p.precision)
	if quantity <= 0 {
		return types.Fill{}, errors.Newf(errors.ErrCodeOrderRejected, "order quantity %v rounds to zero", order.RequestedQuantity)
	}

	price := order.SignalPrice
	fee := p.fee.Calculate(quantity, price)

	switch order.Side {
	case types.PurchaseTypeBuy:
		cost := quantity*price + fee
		if cost > p.cash {
			return types.Fill{}, errors.Newf(errors.ErrCodeOrderRejected, "insufficient balance: need %.8f, have %.8f", cost, p.cash)
		}

		p.cash -= cost
		p.holdings += quantity
	case types.PurchaseTypeSell:
		if quantity > p.holdings {
			return types.Fill{}, errors.Newf(errors.ErrCodeOrderRejected, "insufficient holdings: need %.8f, have %.8f", quantity, p.holdings)
		}

		p.cash += quantity*price - fee
		p.holdings -= quantity
	default:
		return types.Fill{}, errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order side: %s", order.Side)
	}

	p.logger.Debug("Paper order filled",
		zap.String("id", order.ID),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.Float64("cash", p.cash),
	)

	return types.Fill{Price: price, Time: order.RequestedAt, Fee: fee, Quantity: quantity}, nil
}

// Balances returns the quote cash and base holdings of the paper account.
func (p *PaperBroker) Balances() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cash, p.holdings
}

func (p *PaperBroker) CheckConnection(ctx context.Context) error {
	return ctx.Err()
}
