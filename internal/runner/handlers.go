package runner

import (
	"context"
	"fmt"

	"github.com/vborodin/procflow/internal/mq"
)

// Handler возвращает mq.Handler, разбирающий run-сообщения шагов.
func (r *Runner) Handler() mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		switch d.Message.Type {
		case mq.MessageTypeStepRun:
			payload, err := mq.ParsePayload[mq.RunStepPayload](&d.Message)
			if err != nil {
				return fmt.Errorf("parse run payload: %w", err)
			}
			return r.RunStep(ctx, payload)
		default:
			r.logger.Warn("unknown message type, dropping",
				"type", d.Message.Type,
				"message_id", d.Message.ID,
			)
			return nil
		}
	}
}
