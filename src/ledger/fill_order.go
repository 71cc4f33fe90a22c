package ledger

import (
	"time"

	"gorm.io/gorm"
)

type FillOrderSide string

const (
	FillOrderSideBuy  FillOrderSide = "buy"
	FillOrderSideSell FillOrderSide = "sell"
)

type FillOrderStatus string

const (
	FillOrderStatusPending  FillOrderStatus = "pending"
	FillOrderStatusFilled   FillOrderStatus = "filled"
	FillOrderStatusRejected FillOrderStatus = "rejected"
)

// FillOrder is a single order attempt inside a trade cycle.
type FillOrder struct {
	gorm.Model
	CycleID         uint            `gorm:"column:cycle_id;not null;index:idx_cycle_fills"`
	Side            FillOrderSide   `gorm:"column:side;type:varchar(8);not null"`
	Quantity        float64         `gorm:"column:quantity;type:numeric;not null"`
	ExpectedPrice   float64         `gorm:"column:expected_price;type:numeric;not null"`
	FilledPrice     float64         `gorm:"column:filled_price;type:numeric;not null"`
	Slippage        float64         `gorm:"column:slippage;type:numeric;not null;default:0"`
	Status          FillOrderStatus `gorm:"column:status;type:varchar(16);not null"`
	ExchangeOrderID string          `gorm:"column:exchange_order_id;type:varchar(128)"`
	Fee             float64         `gorm:"column:fee;type:numeric;not null;default:0"`
	FilledAt        time.Time       `gorm:"column:filled_at;type:timestamp;not null"`
}

func NewFillOrder(cycleID uint, side FillOrderSide, quantity float64, expectedPrice float64, filledPrice float64, status FillOrderStatus, filledAt time.Time) *FillOrder {
	return &FillOrder{
		CycleID:       cycleID,
		Side:          side,
		Quantity:      quantity,
		ExpectedPrice: expectedPrice,
		FilledPrice:   filledPrice,
		Slippage:      filledPrice - expectedPrice,
		Status:        status,
		FilledAt:      filledAt,
	}
}
