package jobs

import (
	"context"

	"gamerent/internal/platform/metrics"

	"go.uber.org/zap"
)

// OverdueCounter counts unit rentals past their due date.
type OverdueCounter interface {
	CountOverdue(ctx context.Context) (int, error)
}

// OverdueScan publishes the number of overdue rentals as a gauge. Fines are
// settled on return; the scan only reports.
func OverdueScan(counter OverdueCounter, logger *zap.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		n, err := counter.CountOverdue(ctx)
		if err != nil {
			logger.Error("overdue scan failed", zap.Error(err))
			return
		}
		metrics.RentalsOverdue.Set(float64(n))
		if n > 0 {
			logger.Info("overdue rentals", zap.Int("count", n))
		}
	}
}
