package tradingprovider

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rxtech-lab/argo-strategy-engine/internal/logger"
	"github.com/rxtech-lab/argo-strategy-engine/internal/types"
	"github.com/rxtech-lab/argo-strategy-engine/internal/utils"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// BinanceDecimalPrecision is the fallback lot precision. Symbol specific
	// LOT_SIZE filters are stricter for most pairs.
	BinanceDecimalPrecision = 8
)

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	NewOrderRespType(respType binance.NewOrderRespType) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) NewOrderRespType(respType binance.NewOrderRespType) CreateOrderService {
	s.service = s.service.NewOrderRespType(respType)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

// BinanceBroker places spot market orders on Binance. It keeps no state: the
// engine's account is the source of truth and every fill comes back from the
// order response.
type BinanceBroker struct {
	client           BinanceClient
	decimalPrecision int
	paper            bool
	logger           *logger.Logger
}

var _ Broker = (*BinanceBroker)(nil)

// NewBinanceBroker creates a broker for config. paper selects the Binance
// testnet unless config.BaseURL overrides it.
func NewBinanceBroker(config BinanceProviderConfig, paper bool, log *logger.Logger) (*BinanceBroker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	if paper {
		binance.UseTestnet = true
	}

	client := binance.NewClient(config.ApiKey, config.SecretKey)

	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	precision := config.DecimalPrecision
	if precision == 0 {
		precision = BinanceDecimalPrecision
	}

	return &BinanceBroker{
		client:           &realBinanceClient{client: client},
		decimalPrecision: precision,
		paper:            paper,
		logger:           log.Named("binance"),
	}, nil
}

// newBinanceBrokerWithClient is used by tests to inject a fake client.
func newBinanceBrokerWithClient(client BinanceClient, decimalPrecision int) *BinanceBroker {
	return &BinanceBroker{
		client:           client,
		decimalPrecision: decimalPrecision,
		logger:           logger.NewNopLogger(),
	}
}

func (b *BinanceBroker) Name() string {
	if b.paper {
		return string(ProviderBinancePaper)
	}

	return string(ProviderBinanceLive)
}

// PlaceOrder sends order as a market order and waits for the FULL response.
// The fill price is the volume weighted average of the executions.
func (b *BinanceBroker) PlaceOrder(ctx context.Context, order types.Order) (types.Fill, error) {
	var side binance.SideType

	switch order.Side {
	case types.PurchaseTypeBuy:
		side = binance.SideTypeBuy
	case types.PurchaseTypeSell:
		side = binance.SideTypeSell
	default:
		return types.Fill{}, errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order side: %s", order.Side)
	}

	quantity := utils.RoundToDecimalPrecision(order.RequestedQuantity, b.decimalPrecision)
	if quantity <= 0 {
		return types.Fill{}, errors.Newf(errors.ErrCodeOrderRejected,
			"order quantity %.8f is too small after rounding to %d decimal places",
			order.RequestedQuantity, b.decimalPrecision)
	}

	response, err := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', b.decimalPrecision, 64)).
		NewClientOrderID(clientOrderID(order.ID)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if stderrors.As(err, &apiErr) {
			return types.Fill{}, errors.Wrapf(errors.ErrCodeOrderRejected, err, "binance rejected order %s", order.ID)
		}

		return types.Fill{}, errors.Wrapf(errors.ErrCodeBrokerUnavailable, err, "failed to place order %s on binance", order.ID)
	}

	fill, err := b.fillFromResponse(order, response)
	if err != nil {
		return types.Fill{}, err
	}

	b.logger.Info("Order filled",
		zap.String("id", order.ID),
		zap.Int64("exchange_id", response.OrderID),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("price", fill.Price),
		zap.Float64("fee", fill.Fee),
	)

	return fill, nil
}

func (b *BinanceBroker) fillFromResponse(order types.Order, response *binance.CreateOrderResponse) (types.Fill, error) {
	if response == nil {
		return types.Fill{}, errors.Newf(errors.ErrCodeBrokerUnavailable, "empty response for order %s", order.ID)
	}

	switch response.Status {
	case binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired, binance.OrderStatusTypeCanceled:
		return types.Fill{}, errors.Newf(errors.ErrCodeOrderRejected, "order %s ended as %s", order.ID, response.Status)
	}

	executed, err := decimal.NewFromString(response.ExecutedQuantity)
	if err != nil {
		return types.Fill{}, errors.Wrapf(errors.ErrCodeBrokerUnavailable, err, "invalid executed quantity %q", response.ExecutedQuantity)
	}

	if !executed.IsPositive() {
		return types.Fill{}, errors.Newf(errors.ErrCodeOrderRejected, "order %s was not executed", order.ID)
	}

	quote, err := decimal.NewFromString(response.CummulativeQuoteQuantity)
	if err != nil {
		return types.Fill{}, errors.Wrapf(errors.ErrCodeBrokerUnavailable, err, "invalid quote quantity %q", response.CummulativeQuoteQuantity)
	}

	price := quote.Div(executed)

	fee, err := quoteFee(order.Symbol, price, response.Fills)
	if err != nil {
		return types.Fill{}, err
	}

	at := order.RequestedAt
	if response.TransactTime > 0 {
		at = time.UnixMilli(response.TransactTime).UTC()
	}

	return types.Fill{
		Price:    price.InexactFloat64(),
		Time:     at,
		Fee:      fee.InexactFloat64(),
		Quantity: executed.InexactFloat64(),
	}, nil
}

// quoteFee sums the commissions in quote currency. Commissions charged in the
// base asset are converted at price. Other assets (BNB discounts) are not
// convertible without a second price and count as zero.
func quoteFee(symbol string, price decimal.Decimal, fills []*binance.Fill) (decimal.Decimal, error) {
	total := decimal.Zero

	for _, fill := range fills {
		if fill == nil || fill.Commission == "" {
			continue
		}

		commission, err := decimal.NewFromString(fill.Commission)
		if err != nil {
			return decimal.Zero, errors.Wrapf(errors.ErrCodeBrokerUnavailable, err, "invalid commission %q", fill.Commission)
		}

		switch {
		case strings.HasSuffix(symbol, fill.CommissionAsset):
			total = total.Add(commission)
		case strings.HasPrefix(symbol, fill.CommissionAsset):
			total = total.Add(commission.Mul(price))
		}
	}

	return total, nil
}

// clientOrderID fits the engine's order id into Binance's 36 character limit.
func clientOrderID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 36 {
		return id[:36]
	}

	return id
}

// CheckConnection verifies connectivity and authentication.
func (b *BinanceBroker) CheckConnection(ctx context.Context) error {
	if _, err := b.client.NewGetAccountService().Do(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeBrokerUnavailable, "failed to connect to Binance API", err)
	}

	return nil
}
