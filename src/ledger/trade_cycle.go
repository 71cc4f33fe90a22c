package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

type TradeCycleStatus string

const (
	TradeCycleStatusOpen   TradeCycleStatus = "OPEN"
	TradeCycleStatusClosed TradeCycleStatus = "CLOSED"
)

type TradeCycleSide string

const (
	TradeCycleSideLong  TradeCycleSide = "long"
	TradeCycleSideShort TradeCycleSide = "short"
)

// TradeCycle is one open-to-close position lifecycle for one subscription,
// owning zero or more fill orders. Aggregate quantity and PnL are always
// derivable from the fills.
type TradeCycle struct {
	gorm.Model
	SubscriptionID uint             `gorm:"column:subscription_id;not null;index:idx_subscription_cycles"`
	StrategyID     string           `gorm:"column:strategy_id;type:varchar(64);not null;index:idx_strategy_cycles"`
	CycleNumber    int              `gorm:"column:cycle_number;not null"`
	Status         TradeCycleStatus `gorm:"column:status;type:varchar(8);not null;default:'OPEN'"`
	Side           TradeCycleSide   `gorm:"column:side;type:varchar(8);not null"`
	OpenedAt       time.Time        `gorm:"column:opened_at;type:timestamp;not null"`
	ClosedAt       *time.Time       `gorm:"column:closed_at;type:timestamp"`
	EntryPrice     float64          `gorm:"column:entry_price;type:numeric;not null"`
	ExitPrice      *float64         `gorm:"column:exit_price;type:numeric"`
	Quantity       float64          `gorm:"column:quantity;type:numeric;not null;default:0"`
	GrossPnl       float64          `gorm:"column:gross_pnl;type:numeric;not null;default:0"`
	NetPnl         float64          `gorm:"column:net_pnl;type:numeric;not null;default:0"`
	Fees           float64          `gorm:"column:fees;type:numeric;not null;default:0"`
	HoldingTimeSec int64            `gorm:"column:holding_time_sec;not null;default:0"`
	ExitReason     string           `gorm:"column:exit_reason;type:varchar(64)"`
	Fills          []FillOrder      `gorm:"foreignKey:CycleID"`
}

func NewTradeCycle(subscriptionID uint, strategyID eventmodels.StrategyID, cycleNumber int, side TradeCycleSide, entryPrice float64, openedAt time.Time) *TradeCycle {
	return &TradeCycle{
		SubscriptionID: subscriptionID,
		StrategyID:     strategyID.String(),
		CycleNumber:    cycleNumber,
		Status:         TradeCycleStatusOpen,
		Side:           side,
		OpenedAt:       openedAt,
		EntryPrice:     entryPrice,
	}
}

func (c *TradeCycle) IsClosed() bool {
	return c.Status == TradeCycleStatusClosed
}

// entrySide returns the fill side that increases the cycle's position.
func (c *TradeCycle) entrySide() FillOrderSide {
	if c.Side == TradeCycleSideShort {
		return FillOrderSideSell
	}

	return FillOrderSideBuy
}

// CyclePnl is the decimal-exact aggregate derived from a fill set.
type CyclePnl struct {
	Quantity decimal.Decimal
	GrossPnl decimal.Decimal
	Fees     decimal.Decimal
	NetPnl   decimal.Decimal
}

// RecomputePnl derives the cycle's aggregate quantity and PnL from its fills.
// The computation is a pure function of the fill set: running it twice over
// the same fills yields identical results. Only filled orders participate.
func (c *TradeCycle) RecomputePnl(fills []FillOrder) CyclePnl {
	entrySide := c.entrySide()

	entryNotional := decimal.Zero
	exitNotional := decimal.Zero
	entryQty := decimal.Zero
	fees := decimal.Zero

	for _, fill := range fills {
		if fill.Status != FillOrderStatusFilled {
			continue
		}

		qty := decimal.NewFromFloat(fill.Quantity)
		notional := qty.Mul(decimal.NewFromFloat(fill.FilledPrice))
		fees = fees.Add(decimal.NewFromFloat(fill.Fee))

		if fill.Side == entrySide {
			entryQty = entryQty.Add(qty)
			entryNotional = entryNotional.Add(notional)
		} else {
			exitNotional = exitNotional.Add(notional)
		}
	}

	gross := exitNotional.Sub(entryNotional)
	if c.Side == TradeCycleSideShort {
		gross = entryNotional.Sub(exitNotional)
	}

	return CyclePnl{
		Quantity: entryQty,
		GrossPnl: gross,
		Fees:     fees,
		NetPnl:   gross.Sub(fees),
	}
}
