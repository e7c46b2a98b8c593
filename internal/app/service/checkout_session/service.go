package checkout_session

import (
	"context"
	"fmt"
	"time"

	"github.com/fatflowers/coursepay/internal/models"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct{}

func New() *Service { return &Service{} }

// MarkCompleted flags the session completed. The row normally exists already
// (created by checkout); if it does not, a minimal row is inserted.
func (s *Service) MarkCompleted(ctx context.Context, tx *gorm.DB, id string, userID *string, at time.Time) error {
	row := &models.CheckoutSession{ID: id, UserID: userID, Completed: true, CompletedAt: &at}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "completed_at", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to mark checkout session %s completed: %w", id, err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
