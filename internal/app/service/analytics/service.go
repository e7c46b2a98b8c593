package analytics

import (
	"context"
	"fmt"

	"github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/tool"
	"github.com/fatflowers/coursepay/pkg/types"

	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service appends business facts. Rows are never updated.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// Record appends one fact in tx, so it commits with the mutation it describes.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, userID string, name types.AnalyticsEventName, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	ev := &models.AnalyticsEvent{
		ID:         tool.GenerateUUIDV7(),
		UserID:     userID,
		EventName:  name,
		Properties: datatypes.JSONMap(props),
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record analytics event %s: %w", name, err)
	}
	return nil
}

// CountByName returns how many facts exist per event name.
func (s *Service) CountByName(ctx context.Context) (map[types.AnalyticsEventName]int64, error) {
	var rows []struct {
		EventName types.AnalyticsEventName
		Count     int64
	}
	err := s.db.WithContext(ctx).Model(&models.AnalyticsEvent{}).
		Select("event_name, count(*) as count").
		Group("event_name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count analytics events: %w", err)
	}
	out := make(map[types.AnalyticsEventName]int64, len(rows))
	for _, r := range rows {
		out[r.EventName] = r.Count
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
