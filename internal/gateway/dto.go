package gateway

import (
	"github.com/gookit/validate"
	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/internal/domain"
)

// Errors matches the teacher's controllers/helpers.Errors envelope
// shape verbatim: a plain list under an "errors" key.
type Errors struct {
	Errors []string `json:"errors"`
}

func (e Errors) Size() int { return len(e.Errors) }

func runValidate(payload interface{}, dst *Errors) {
	v := validate.Struct(payload)
	if !v.Validate() {
		for _, errs := range v.Errors.All() {
			for _, msg := range errs {
				dst.Errors = append(dst.Errors, msg)
			}
		}
	}
}

// CreateOrderParams is grounded on controllers/helpers.CreateOrderParams,
// generalized to this system's Side/Type/TimeInForce vocabulary and
// with time_in_force added since the teacher has no such field.
type CreateOrderParams struct {
	TradingPair string              `json:"trading_pair" validate:"required"`
	Side        string              `json:"side" validate:"required|in:buy,sell"`
	Type        string              `json:"type" validate:"in:limit,market"`
	TimeInForce string              `json:"time_in_force" validate:"in:GTC,IOC,FOK"`
	Price       decimal.NullDecimal `json:"price" validate:"ValidatePrice"`
	Quantity    decimal.Decimal     `json:"quantity" validate:"ValidateQuantity"`
}

func (p CreateOrderParams) Messages() map[string]string {
	return validate.MS{
		"required":         "order.invalid_{field}",
		"in":               "order.invalid_{field}",
		"ValidatePrice":    "order.non_positive_price",
		"ValidateQuantity": "order.non_positive_quantity",
	}
}

func (p CreateOrderParams) ValidatePrice(price decimal.NullDecimal) bool {
	if price.Valid {
		return price.Decimal.IsPositive()
	}
	return true
}

func (p CreateOrderParams) ValidateQuantity(qty decimal.Decimal) bool {
	return qty.IsPositive()
}

func (p CreateOrderParams) side() domain.Side {
	if p.Side == "sell" {
		return domain.SideSell
	}
	return domain.SideBuy
}

func (p CreateOrderParams) orderType() domain.OrderType {
	if p.Type == "market" {
		return domain.TypeMarket
	}
	return domain.TypeLimit
}

func (p CreateOrderParams) timeInForce() domain.TimeInForce {
	switch p.TimeInForce {
	case string(domain.IOC):
		return domain.IOC
	case string(domain.FOK):
		return domain.FOK
	default:
		if p.orderType() == domain.TypeMarket {
			return domain.IOC
		}
		return domain.GTC
	}
}

func (p CreateOrderParams) price() decimal.Decimal {
	if p.Price.Valid {
		return p.Price.Decimal
	}
	return decimal.Zero
}

// OrderView is the JSON response shape for an order, grounded on
// controllers/entities.OrderEntities but flattened to this system's
// field names.
type OrderView struct {
	OrderID           string `json:"order_id"`
	UserID            string `json:"user_id"`
	TradingPair       string `json:"trading_pair"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	TimeInForce       string `json:"time_in_force"`
	LimitPrice        string `json:"limit_price,omitempty"`
	OriginalQuantity  string `json:"original_quantity"`
	FilledQuantity    string `json:"filled_quantity"`
	RemainingQuantity string `json:"remaining_quantity"`
	AverageFillPrice  string `json:"average_fill_price,omitempty"`
	Status            string `json:"status"`
	SequenceNumber    uint64 `json:"sequence_number"`
}

func toOrderView(o *domain.Order) OrderView {
	v := OrderView{
		OrderID:           o.OrderID,
		UserID:            o.UserID,
		TradingPair:       o.TradingPair,
		Side:              string(o.Side),
		Type:              string(o.Type),
		TimeInForce:       string(o.TimeInForce),
		OriginalQuantity:  o.OriginalQuantity.String(),
		FilledQuantity:    o.FilledQuantity.String(),
		RemainingQuantity: o.RemainingQuantity.String(),
		Status:            string(o.Status),
		SequenceNumber:    o.SequenceNumber,
	}
	if o.Type == domain.TypeLimit {
		v.LimitPrice = o.LimitPrice.String()
	}
	if o.FilledQuantity.IsPositive() {
		v.AverageFillPrice = o.AverageFillPrice.String()
	}
	return v
}

type TradeView struct {
	TradeID       string `json:"trade_id"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	BuyerOrderID  string `json:"buyer_order_id"`
	SellerOrderID string `json:"seller_order_id"`
}

func toTradeView(t *domain.Trade) TradeView {
	return TradeView{
		TradeID:       t.TradeID,
		Price:         t.Price.String(),
		Quantity:      t.Quantity.String(),
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
	}
}
