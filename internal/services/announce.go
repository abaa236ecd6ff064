package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/realtime"
)

// announce publishes a change after it has been committed. A failed publish
// is logged only; the write itself already succeeded.
func announce(ctx context.Context, pub realtime.Publisher, logger *zap.Logger, table string, typ realtime.EventType, oldRow, newRow any) {
	if pub == nil {
		return
	}
	ev, err := realtime.NewChangeEvent(table, typ, oldRow, newRow)
	if err == nil {
		err = pub.Publish(ctx, ev)
	}
	if err != nil {
		logger.Warn("publish change event failed",
			zap.String("table", table),
			zap.String("event", string(typ)),
			zap.Error(err))
	}
}
