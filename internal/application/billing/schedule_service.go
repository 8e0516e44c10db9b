package billing

import (
	"context"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxPreviewPeriods caps PreviewPeriods
const MaxPreviewPeriods = 36

// ScheduleService handles billing schedule configuration
type ScheduleService struct {
	schedules  billing.BillingScheduleRepository
	strategies StrategyResolver
	now        func() time.Time
	logger     *zap.Logger
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(schedules billing.BillingScheduleRepository, strategies StrategyResolver, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		schedules:  schedules,
		strategies: strategies,
		now:        time.Now,
		logger:     logger,
	}
}

// CreateSchedule validates and stores a billing schedule. The strategy and
// prorater are resolved up front so a bad configuration never reaches a
// billing run.
func (s *ScheduleService) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*ScheduleResponse, error) {
	schedule, err := billing.NewBillingSchedule(billing.BillingScheduleParams{
		Label:              req.Label,
		BillingType:        billing.BillingType(req.BillingType),
		StrategyID:         req.StrategyID,
		StrategyConfig:     req.StrategyConfig,
		ProraterID:         req.ProraterID,
		DunningSchedule:    req.DunningSchedule,
		DunningDisposition: billing.DunningDisposition(req.DunningDisposition),
	}, s.now())
	if err != nil {
		return nil, err
	}

	if _, err := s.strategies.ScheduleStrategyFor(schedule); err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidConfig.Code, err.Error())
	}
	if _, err := s.strategies.GetProrater(schedule.ProraterID); err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidConfig.Code, err.Error())
	}

	if err := s.schedules.Save(ctx, schedule); err != nil {
		return nil, err
	}
	s.logger.Info("Billing schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("strategy", schedule.StrategyID),
		zap.Ints("dunning_schedule", schedule.DunningSchedule))

	resp := ToScheduleResponse(schedule)
	return &resp, nil
}

// GetSchedule retrieves a billing schedule by ID
func (s *ScheduleService) GetSchedule(ctx context.Context, id uuid.UUID) (*ScheduleResponse, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToScheduleResponse(schedule)
	return &resp, nil
}

// ListSchedules returns all billing schedules
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]ScheduleResponse, error) {
	schedules, err := s.schedules.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]ScheduleResponse, len(schedules))
	for i, schedule := range schedules {
		responses[i] = ToScheduleResponse(schedule)
	}
	return responses, nil
}

// PreviewPeriods returns the first count billing periods the schedule would
// generate for a subscription starting at start
func (s *ScheduleService) PreviewPeriods(ctx context.Context, id uuid.UUID, start time.Time, count int) ([]PeriodResponse, error) {
	if count < 1 || count > MaxPreviewPeriods {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "count must be between 1 and 36")
	}
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	strat, err := s.strategies.ScheduleStrategyFor(schedule)
	if err != nil {
		return nil, err
	}

	periods := billing.GeneratePeriods(strat, start, count)
	responses := make([]PeriodResponse, len(periods))
	for i, p := range periods {
		responses[i] = ToPeriodResponse(p)
	}
	return responses, nil
}
