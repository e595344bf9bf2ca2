package monitor

import (
	"context"
	"time"

	"github.com/bhtaylor94/Stock-data/engine"
	"github.com/bhtaylor94/Stock-data/logs"
)

// StatusSource is the part of the engine the heartbeat reports on.
type StatusSource interface {
	Status() engine.Status
}

// RunHeartbeat logs a one-line status summary every interval until ctx is done.
func RunHeartbeat(ctx context.Context, src StatusSource, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.Info("[Heartbeat] Stopped.")
			return
		case <-ticker.C:
			logHeartbeat(src.Status())
		}
	}
}

func logHeartbeat(st engine.Status) {
	logs.Infof("[Heartbeat] running=%t positions=%d daily_pnl=%.2f trades=%d total_pnl=%.2f win_rate=%.1f%%",
		st.Running, st.OpenPositions, st.DailyPnL, st.DailyTrades, st.Totals.TotalPnL, st.Totals.WinRate*100)
	if st.TradingHalted {
		logs.Warnf("[Heartbeat] New entries halted: %s", st.HaltReason)
	}
	if st.ScanError != "" {
		logs.Warnf("[Heartbeat] Scan loop degraded: %s", st.ScanError)
	}
	if st.MonitorError != "" {
		logs.Warnf("[Heartbeat] Monitor loop degraded: %s", st.MonitorError)
	}
}
