package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/cisasmendi/sistema-stock/internal/domain/notify"
)

var _ notify.Sender = (*LogSender)(nil)

// LogSender writes notifications to the log instead of sending them.
// Used when no mail credentials are configured.
type LogSender struct {
	lg *zap.Logger
}

// NewLogSender returns a LogSender writing to lg.
func NewLogSender(lg *zap.Logger) *LogSender {
	return &LogSender{lg: lg}
}

func (s *LogSender) Send(_ context.Context, to string, kind notify.Kind, o notify.OrderSnapshot) error {
	s.lg.Info("notification",
		zap.String("to", to),
		zap.String("kind", string(kind)),
		zap.String("order_id", o.OrderID),
		zap.String("total", o.Total),
		zap.String("shipping_code", o.ShippingCode),
	)
	return nil
}
