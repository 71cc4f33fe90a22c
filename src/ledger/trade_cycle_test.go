package ledger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputePnl(t *testing.T) {
	openedAt := time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

	t.Run("long cycle with partial exits", func(t *testing.T) {
		cycle := NewTradeCycle(1, "momentum-btc", 1, TradeCycleSideLong, 100.0, openedAt)

		fills := []FillOrder{
			*NewFillOrder(1, FillOrderSideBuy, 2, 100.0, 100.0, FillOrderStatusFilled, openedAt),
			*NewFillOrder(1, FillOrderSideSell, 1, 110.0, 110.0, FillOrderStatusFilled, openedAt.Add(time.Hour)),
			*NewFillOrder(1, FillOrderSideSell, 1, 112.0, 112.0, FillOrderStatusFilled, openedAt.Add(2*time.Hour)),
		}
		fills[0].Fee = 0.1
		fills[1].Fee = 0.1
		fills[2].Fee = 0.1

		pnl := cycle.RecomputePnl(fills)

		assert.Equal(t, "2", pnl.Quantity.String())
		assert.Equal(t, "22", pnl.GrossPnl.String())
		assert.Equal(t, "0.3", pnl.Fees.String())
		assert.Equal(t, "21.7", pnl.NetPnl.String())
	})

	t.Run("short cycle", func(t *testing.T) {
		cycle := NewTradeCycle(1, "momentum-btc", 2, TradeCycleSideShort, 100.0, openedAt)

		fills := []FillOrder{
			*NewFillOrder(2, FillOrderSideSell, 3, 100.0, 100.0, FillOrderStatusFilled, openedAt),
			*NewFillOrder(2, FillOrderSideBuy, 3, 95.0, 95.0, FillOrderStatusFilled, openedAt.Add(time.Hour)),
		}

		pnl := cycle.RecomputePnl(fills)

		assert.Equal(t, "3", pnl.Quantity.String())
		assert.Equal(t, "15", pnl.GrossPnl.String())
		assert.Equal(t, "15", pnl.NetPnl.String())
	})

	t.Run("rejected fills are excluded", func(t *testing.T) {
		cycle := NewTradeCycle(1, "momentum-btc", 3, TradeCycleSideLong, 100.0, openedAt)

		fills := []FillOrder{
			*NewFillOrder(3, FillOrderSideBuy, 1, 100.0, 100.0, FillOrderStatusFilled, openedAt),
			*NewFillOrder(3, FillOrderSideBuy, 5, 100.0, 0, FillOrderStatusRejected, openedAt),
			*NewFillOrder(3, FillOrderSideSell, 1, 104.0, 104.0, FillOrderStatusFilled, openedAt.Add(time.Hour)),
		}

		pnl := cycle.RecomputePnl(fills)

		assert.Equal(t, "1", pnl.Quantity.String())
		assert.Equal(t, "4", pnl.GrossPnl.String())
	})

	t.Run("recompute is idempotent", func(t *testing.T) {
		cycle := NewTradeCycle(1, "momentum-btc", 4, TradeCycleSideLong, 33.33, openedAt)

		fills := []FillOrder{
			*NewFillOrder(4, FillOrderSideBuy, 7, 33.33, 33.35, FillOrderStatusFilled, openedAt),
			*NewFillOrder(4, FillOrderSideSell, 7, 35.10, 35.07, FillOrderStatusFilled, openedAt.Add(time.Hour)),
		}
		fills[0].Fee = 0.0233
		fills[1].Fee = 0.0245

		first := cycle.RecomputePnl(fills)
		second := cycle.RecomputePnl(fills)

		assert.True(t, first.NetPnl.Equal(second.NetPnl))
		assert.True(t, first.GrossPnl.Equal(second.GrossPnl))
		assert.True(t, first.Fees.Equal(second.Fees))
		assert.Equal(t, first.NetPnl.String(), second.NetPnl.String())
	})
}

func TestExportTradeCyclesToCsv(t *testing.T) {
	openedAt := time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)
	closedAt := openedAt.Add(3 * time.Hour)
	exitPrice := 108.5

	cycle := NewTradeCycle(9, "momentum-btc", 1, TradeCycleSideLong, 100.0, openedAt)
	cycle.Status = TradeCycleStatusClosed
	cycle.ClosedAt = &closedAt
	cycle.ExitPrice = &exitPrice
	cycle.ExitReason = "take_profit"
	cycle.NetPnl = 8.5

	var buf bytes.Buffer
	err := ExportTradeCyclesToCsv([]TradeCycle{*cycle}, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "net_pnl")
	assert.Contains(t, lines[1], "momentum-btc")
	assert.Contains(t, lines[1], "take_profit")
	assert.Contains(t, lines[1], "8.5")
}
