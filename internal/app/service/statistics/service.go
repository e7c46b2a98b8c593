package statistics

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fatflowers/coursepay/internal/app/service/analytics"
	"github.com/fatflowers/coursepay/internal/models"
	"github.com/fatflowers/coursepay/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatisticType string

const (
	// Webhook ledger
	StatisticTypeDailyReceivedCount  StatisticType = "daily_received_count"
	StatisticTypeDailyProcessedCount StatisticType = "daily_processed_count"
	StatisticTypeDailyFailedCount    StatisticType = "daily_failed_count"
	StatisticTypeDailyEventTypeCount StatisticType = "daily_event_type_count"
	StatisticTypeRetryableBacklog    StatisticType = "retryable_backlog"

	// Business facts
	StatisticTypeAnalyticsEventCount StatisticType = "analytics_event_count"
)

// filterFields may be used to narrow ledger statistics.
var filterFields = []string{"event_type", "livemode", "created_at"}

// ledgerStatistics accept filters; the rest ignore them.
var ledgerStatistics = []StatisticType{
	StatisticTypeDailyReceivedCount,
	StatisticTypeDailyProcessedCount,
	StatisticTypeDailyFailedCount,
	StatisticTypeDailyEventTypeCount,
	StatisticTypeRetryableBacklog,
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type ReconciliationStatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

func (f *ReconciliationStatisticRequest) Validate() error {
	for _, filter := range f.Filters {
		if err := filter.Validate(filterFields); err != nil {
			return err
		}
	}
	for _, item := range f.DataItems {
		if item == nil {
			return fmt.Errorf("nil data item")
		}
	}
	return nil
}

func (f *ReconciliationStatisticRequest) where() clause.Where {
	return clause.Where{Exprs: []clause.Expression{types.FiltersAnd(f.Filters)}}
}

type StatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type ReconciliationStatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	db        *gorm.DB
	analytics *analytics.Service
}

func New(db *gorm.DB, analytics *analytics.Service) *Service {
	return &Service{db: db, analytics: analytics}
}

// dayOf renders column as YYYY-MM-DD in the connected dialect.
func (s *Service) dayOf(column string) string {
	if s.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
	}
	return fmt.Sprintf("substr(%s, 1, 10)", column)
}

func (s *Service) ledger(ctx context.Context, request *ReconciliationStatisticRequest) *gorm.DB {
	return s.db.WithContext(ctx).Table((models.WebhookEvent{}).TableName()).Where(request.where())
}

func (s *Service) getDailyReceivedCount(ctx context.Context, request *ReconciliationStatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dayOf("created_at")
	q := s.ledger(ctx, request).
		Select(day + " as date, count(*) as value").
		Group(day).
		Order("date desc")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyProcessedCount(ctx context.Context, request *ReconciliationStatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dayOf("processed_at")
	q := s.ledger(ctx, request).
		Select(day + " as date, count(*) as value").
		Where("processed = ? AND error_message IS NULL", true).
		Group(day).
		Order("date desc")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getDailyFailedCount splits failures into permanent (closed with an error)
// and retryable (still open).
func (s *Service) getDailyFailedCount(ctx context.Context, request *ReconciliationStatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dayOf("created_at")
	label := "CASE WHEN processed THEN 'permanent' ELSE 'retryable' END"
	q := s.ledger(ctx, request).
		Select(day + " as date, " + label + " as label, count(*) as value").
		Where("error_message IS NOT NULL").
		Group(day).
		Group(label).
		Order("date desc").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyEventTypeCount(ctx context.Context, request *ReconciliationStatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dayOf("created_at")
	q := s.ledger(ctx, request).
		Select(day + " as date, event_type as label, count(*) as value").
		Group(day).
		Group("event_type").
		Order("date desc").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRetryableBacklog(ctx context.Context, request *ReconciliationStatisticRequest) ([]StatisticResponseDataItem, error) {
	var count int64
	err := s.ledger(ctx, request).
		Where("processed = ? AND error_message IS NOT NULL", false).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Value: count}}, nil
}

func (s *Service) getAnalyticsEventCount(ctx context.Context, _ *ReconciliationStatisticRequest) ([]StatisticResponseDataItem, error) {
	counts, err := s.analytics.CountByName(ctx)
	if err != nil {
		return nil, err
	}
	results := lo.MapToSlice(counts, func(name types.AnalyticsEventName, n int64) StatisticResponseDataItem {
		return StatisticResponseDataItem{Label: string(name), Value: n}
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Label < results[j].Label })
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *ReconciliationStatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	if !lo.Contains(ledgerStatistics, dataItem.ID) {
		request = &ReconciliationStatisticRequest{}
	}
	switch dataItem.ID {
	case StatisticTypeDailyReceivedCount:
		return s.getDailyReceivedCount(ctx, request)
	case StatisticTypeDailyProcessedCount:
		return s.getDailyProcessedCount(ctx, request)
	case StatisticTypeDailyFailedCount:
		return s.getDailyFailedCount(ctx, request)
	case StatisticTypeDailyEventTypeCount:
		return s.getDailyEventTypeCount(ctx, request)
	case StatisticTypeRetryableBacklog:
		return s.getRetryableBacklog(ctx, request)
	case StatisticTypeAnalyticsEventCount:
		return s.getAnalyticsEventCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

func (s *Service) GetReconciliationStatistic(ctx context.Context, request *ReconciliationStatisticRequest) (*ReconciliationStatisticResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}
	wg.Wait()
	close(errChan)
	close(resChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	results := make(map[StatisticType][]StatisticResponseDataItem, len(request.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &ReconciliationStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
