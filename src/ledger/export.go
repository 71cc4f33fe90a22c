package ledger

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

type TradeCycleCsvDTO struct {
	CycleID        uint    `csv:"cycle_id"`
	StrategyID     string  `csv:"strategy_id"`
	SubscriptionID uint    `csv:"subscription_id"`
	CycleNumber    int     `csv:"cycle_number"`
	Status         string  `csv:"status"`
	Side           string  `csv:"side"`
	OpenedAt       string  `csv:"opened_at"`
	ClosedAt       string  `csv:"closed_at"`
	EntryPrice     float64 `csv:"entry_price"`
	ExitPrice      float64 `csv:"exit_price"`
	Quantity       float64 `csv:"quantity"`
	GrossPnl       float64 `csv:"gross_pnl"`
	NetPnl         float64 `csv:"net_pnl"`
	Fees           float64 `csv:"fees"`
	HoldingTimeSec int64   `csv:"holding_time_sec"`
	ExitReason     string  `csv:"exit_reason"`
	FillCount      int     `csv:"fill_count"`
}

func (c *TradeCycle) ToCsvDTO() *TradeCycleCsvDTO {
	dto := &TradeCycleCsvDTO{
		CycleID:        c.ID,
		StrategyID:     c.StrategyID,
		SubscriptionID: c.SubscriptionID,
		CycleNumber:    c.CycleNumber,
		Status:         string(c.Status),
		Side:           string(c.Side),
		OpenedAt:       c.OpenedAt.Format("2006-01-02 15:04:05"),
		EntryPrice:     c.EntryPrice,
		Quantity:       c.Quantity,
		GrossPnl:       c.GrossPnl,
		NetPnl:         c.NetPnl,
		Fees:           c.Fees,
		HoldingTimeSec: c.HoldingTimeSec,
		ExitReason:     c.ExitReason,
		FillCount:      len(c.Fills),
	}

	if c.ClosedAt != nil {
		dto.ClosedAt = c.ClosedAt.Format("2006-01-02 15:04:05")
	}

	if c.ExitPrice != nil {
		dto.ExitPrice = *c.ExitPrice
	}

	return dto
}

// ExportTradeCyclesToCsv writes an audit export of the given cycles.
func ExportTradeCyclesToCsv(cycles []TradeCycle, out io.Writer) error {
	dtos := make([]*TradeCycleCsvDTO, 0, len(cycles))
	for i := range cycles {
		dtos = append(dtos, cycles[i].ToCsvDTO())
	}

	if err := gocsv.Marshal(&dtos, out); err != nil {
		return fmt.Errorf("failed to marshal trade cycles to csv: %w", err)
	}

	return nil
}
