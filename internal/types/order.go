package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
)

type PurchaseType string

type OrderStatus string

type OrderIntent string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderIntentEntry OrderIntent = "ENTRY"
	OrderIntentExit  OrderIntent = "EXIT"
)

const (
	OrderReasonStrategy         string = "strategy"
	OrderReasonStopLoss         string = "stop_loss"
	OrderReasonTakeProfit       string = "take_profit"
	OrderReasonEndOfData        string = "end_of_data"
	OrderReasonStale            string = "stale_market_data"
	OrderReasonSlippage         string = "price_moved_beyond_tolerance"
	OrderReasonInsufficientCash string = "insufficient_cash_at_fill"
	OrderReasonBrokerRejected   string = "broker_rejected"
	OrderReasonBrokerError      string = "broker_error"
	OrderReasonNoNextBar        string = "no_next_bar"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order is a request to enter or leave the position, tracked through its lifecycle.
type Order struct {
	ID                string                     `yaml:"id" json:"id" csv:"id" validate:"required,uuid"`
	Symbol            string                     `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side              PurchaseType               `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Intent            OrderIntent                `yaml:"intent" json:"intent" csv:"intent" validate:"required,oneof=ENTRY EXIT"`
	RequestedQuantity float64                    `yaml:"requested_quantity" json:"requested_quantity" csv:"requested_quantity" validate:"required,gt=0"`
	Status            OrderStatus                `yaml:"status" json:"status" csv:"status" validate:"required,oneof=PENDING FILLED CANCELLED REJECTED"`
	RequestedAt       time.Time                  `yaml:"requested_at" json:"requested_at" csv:"requested_at" validate:"required"`
	SignalPrice       float64                    `yaml:"signal_price" json:"signal_price" csv:"signal_price" validate:"gt=0"`
	FilledAt          optional.Option[time.Time] `yaml:"filled_at" json:"filled_at" csv:"filled_at"`
	FillPrice         optional.Option[float64]   `yaml:"fill_price" json:"fill_price" csv:"fill_price"`
	Fee               float64                    `yaml:"fee" json:"fee" csv:"fee" validate:"gte=0"`
	// Reason is why the order was created and, once terminal, why it ended the way it did.
	Reason string `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	return nil
}

// Fill moves a pending order to FILLED.
func (o *Order) Fill(at time.Time, price float64, fee float64) error {
	if err := o.transition(OrderStatusFilled); err != nil {
		return err
	}

	o.FilledAt = optional.Some(at)
	o.FillPrice = optional.Some(price)
	o.Fee = fee

	return nil
}

// Cancel moves a pending order to CANCELLED.
func (o *Order) Cancel(reason string) error {
	if err := o.transition(OrderStatusCancelled); err != nil {
		return err
	}

	o.Reason = reason

	return nil
}

// Reject moves a pending order to REJECTED.
func (o *Order) Reject(reason string) error {
	if err := o.transition(OrderStatusRejected); err != nil {
		return err
	}

	o.Reason = reason

	return nil
}

func (o *Order) transition(to OrderStatus) error {
	if o.Status != OrderStatusPending {
		return errors.Newf(errors.ErrCodeInvalidOrderTransition, "order %s cannot move from %s to %s", o.ID, o.Status, to)
	}

	o.Status = to

	return nil
}

// Fill is an execution report returned by a broker.
type Fill struct {
	Price float64
	Time  time.Time
	Fee   float64
	// Quantity is the executed quantity. Zero means the requested quantity.
	Quantity float64
}
