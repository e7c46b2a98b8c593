package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/coursepay/internal/app/service/analytics"
	"github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/logctx"
	"github.com/fatflowers/coursepay/pkg/tool"
	"github.com/fatflowers/coursepay/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEnrollmentNotFound = errors.New("course enrollment not found")

type NewEnrollmentInput struct {
	UserID       string
	CourseID     string
	DaysOfAccess int
	PaymentID    string
	Livemode     bool
	Source       string
	Now          time.Time
}

type RenewalInput struct {
	UserID       string
	CourseID     string
	DaysOfAccess int
	PaymentID    string
	Source       string
	Now          time.Time
}

type Service struct {
	db        *gorm.DB
	analytics *analytics.Service
	log       *zap.SugaredLogger
}

func New(db *gorm.DB, analytics *analytics.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, analytics: analytics, log: log}
}

// renewalWindow is the access window a renewal grants. It is anchored on the
// renewal time, not on the previous expiry.
func renewalWindow(now time.Time, daysOfAccess int) (time.Time, time.Time) {
	return now, now.AddDate(0, 0, daysOfAccess)
}

// Create inserts a new active enrollment. A second insert for the same payment
// is a no-op and records no analytics. It reports whether a row was created.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, in *NewEnrollmentInput) (bool, error) {
	e := &models.CourseEnrollment{
		ID:         tool.GenerateUUIDV7(),
		UserID:     in.UserID,
		CourseID:   in.CourseID,
		Status:     types.EnrollmentStatusActive,
		EnrolledAt: in.Now,
		ExpiresAt:  in.Now.AddDate(0, 0, in.DaysOfAccess),
		PaymentID:  in.PaymentID,
		Livemode:   in.Livemode,
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(e)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create enrollment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logctx.FromCtx(ctx, s.log).Infow("enrollment already exists for payment", "payment_id", in.PaymentID)
		return false, nil
	}

	if err := s.analytics.Record(ctx, tx, in.UserID, types.AnalyticsEventCoursePurchase, map[string]any{
		"courseId":     in.CourseID,
		"daysOfAccess": in.DaysOfAccess,
		"paymentId":    in.PaymentID,
		"source":       in.Source,
	}); err != nil {
		return false, err
	}
	logctx.FromCtx(ctx, s.log).Infow("enrollment created", "user_id", in.UserID, "course_id", in.CourseID, "expires_at", e.ExpiresAt)
	return true, nil
}

// Renew extends the user's latest enrollment for the course in place.
// A renewal payment that was already applied is a no-op, even when later
// renewals have happened since.
func (s *Service) Renew(ctx context.Context, tx *gorm.DB, in *RenewalInput) (bool, error) {
	var e models.CourseEnrollment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", in.UserID, in.CourseID).
		Order("enrolled_at desc").
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("%w: user=%s course=%s", ErrEnrollmentNotFound, in.UserID, in.CourseID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to load enrollment: %w", err)
	}

	renewedAt, expiresAt := renewalWindow(in.Now, in.DaysOfAccess)
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(&models.CourseEnrollmentRenewal{
		ID:           tool.GenerateUUIDV7(),
		EnrollmentID: e.ID,
		PaymentID:    in.PaymentID,
		DaysOfAccess: in.DaysOfAccess,
		RenewedAt:    renewedAt,
		ExpiresAt:    expiresAt,
	})
	if res.Error != nil {
		return false, fmt.Errorf("failed to record renewal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logctx.FromCtx(ctx, s.log).Infow("renewal already applied", "payment_id", in.PaymentID)
		return false, nil
	}

	err = tx.WithContext(ctx).Model(&models.CourseEnrollment{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"status":             types.EnrollmentStatusActive,
			"expires_at":         expiresAt,
			"renewed_at":         renewedAt,
			"renewal_payment_id": in.PaymentID,
			"renewal_count":      gorm.Expr("renewal_count + 1"),
			"notification_sent":  false,
		}).Error
	if err != nil {
		return false, fmt.Errorf("failed to renew enrollment: %w", err)
	}

	if err := s.analytics.Record(ctx, tx, in.UserID, types.AnalyticsEventCourseRenewal, map[string]any{
		"courseId":     in.CourseID,
		"daysOfAccess": in.DaysOfAccess,
		"paymentId":    in.PaymentID,
		"renewalCount": e.RenewalCount + 1,
		"source":       in.Source,
	}); err != nil {
		return false, err
	}
	logctx.FromCtx(ctx, s.log).Infow("enrollment renewed", "user_id", in.UserID, "course_id", in.CourseID, "expires_at", expiresAt)
	return true, nil
}

// ListByUser returns the user's enrollments, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.CourseEnrollment, error) {
	var items []*models.CourseEnrollment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("enrolled_at desc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return items, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
