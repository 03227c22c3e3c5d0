package vigilance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
)

// StreamPublisher writes alerts onto a Redis stream. Downstream delivery
// workers consume the stream and fan out to tenant channels.
type StreamPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStreamPublisher creates the publisher over a shared redis client.
func NewStreamPublisher(client *redis.Client, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, logger: logger}
}

var _ AlertPublisher = (*StreamPublisher)(nil)

func (p *StreamPublisher) Publish(ctx context.Context, alert *profile.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("alert marshal failed: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: cache.AlertStreamKey,
		Values: map[string]interface{}{
			"alert_id":   alert.ID.String(),
			"subject_id": alert.SubjectID.String(),
			"tenant_id":  alert.TenantID.String(),
			"severity":   string(alert.Severity),
			"payload":    payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("alert stream publish failed: %w", err)
	}
	p.logger.Info("alert published",
		zap.String("alert_id", alert.ID.String()),
		zap.String("subject_id", alert.SubjectID.String()),
		zap.String("severity", string(alert.Severity)))
	return nil
}
