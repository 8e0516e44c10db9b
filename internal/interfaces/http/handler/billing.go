package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	appbilling "github.com/erp/recurring-billing/internal/application/billing"
	"github.com/erp/recurring-billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ScheduleService is the schedule API consumed by ScheduleHandler
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req appbilling.CreateScheduleRequest) (*appbilling.ScheduleResponse, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*appbilling.ScheduleResponse, error)
	ListSchedules(ctx context.Context) ([]appbilling.ScheduleResponse, error)
	PreviewPeriods(ctx context.Context, id uuid.UUID, start time.Time, count int) ([]appbilling.PeriodResponse, error)
}

// SubscriptionService is the subscription and order API consumed by
// SubscriptionHandler
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req appbilling.CreateSubscriptionRequest) (*appbilling.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*appbilling.SubscriptionResponse, error)
	ActivateSubscription(ctx context.Context, id uuid.UUID, req appbilling.ActivateSubscriptionRequest) (*appbilling.RecurringOrderResponse, error)
	CancelSubscription(ctx context.Context, id uuid.UUID) (*appbilling.SubscriptionResponse, error)
	ListOrdersForSubscription(ctx context.Context, id uuid.UUID) ([]appbilling.RecurringOrderResponse, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*appbilling.RecurringOrderResponse, error)
	RefreshOrder(ctx context.Context, id uuid.UUID) (*appbilling.RecurringOrderResponse, error)
	AddPaymentMethod(ctx context.Context, req appbilling.AddPaymentMethodRequest) (*appbilling.PaymentMethodResponse, error)
}

// CronRunner runs one dispatch pass
type CronRunner interface {
	RunCron(ctx context.Context, now time.Time) (appbilling.CronResult, error)
}

// ScheduleHandler serves billing schedules
type ScheduleHandler struct {
	BaseHandler
	service ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(service ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// RegisterRoutes mounts the schedule routes
func (h *ScheduleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/billing-schedules")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/periods", h.PreviewPeriods)
}

// Create handles POST /billing-schedules
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req appbilling.CreateScheduleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get handles GET /billing-schedules/:id
func (h *ScheduleHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// List handles GET /billing-schedules
func (h *ScheduleHandler) List(c *gin.Context) {
	resp, err := h.service.ListSchedules(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// PreviewPeriods handles GET /billing-schedules/:id/periods?start=RFC3339&count=N.
// start defaults to now and count to 12.
func (h *ScheduleHandler) PreviewPeriods(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	start := time.Now().UTC()
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "start must be an RFC3339 timestamp")
			return
		}
		start = parsed
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", "12"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "count must be an integer")
		return
	}

	periods, err := h.service.PreviewPeriods(c.Request.Context(), id, start, count)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, periods)
}

// SubscriptionHandler serves subscriptions, their orders and payment methods
type SubscriptionHandler struct {
	BaseHandler
	service SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(service SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// RegisterRoutes mounts the subscription, order and payment method routes
func (h *SubscriptionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	subs := rg.Group("/subscriptions")
	subs.POST("", h.Create)
	subs.GET("/:id", h.Get)
	subs.POST("/:id/activate", h.Activate)
	subs.POST("/:id/cancel", h.Cancel)
	subs.GET("/:id/orders", h.ListOrders)

	orders := rg.Group("/orders")
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/refresh", h.RefreshOrder)

	rg.POST("/payment-methods", h.AddPaymentMethod)
}

// Create handles POST /subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req appbilling.CreateSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get handles GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.GetSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Activate handles POST /subscriptions/:id/activate. The body is optional
// and returns the first recurring order.
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req appbilling.ActivateSubscriptionRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.ActivateSubscription(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel handles POST /subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.CancelSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListOrders handles GET /subscriptions/:id/orders
func (h *SubscriptionHandler) ListOrders(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.ListOrdersForSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GetOrder handles GET /orders/:id
func (h *SubscriptionHandler) GetOrder(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RefreshOrder handles POST /orders/:id/refresh
func (h *SubscriptionHandler) RefreshOrder(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.service.RefreshOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// AddPaymentMethod handles POST /payment-methods
func (h *SubscriptionHandler) AddPaymentMethod(c *gin.Context) {
	var req appbilling.AddPaymentMethodRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.AddPaymentMethod(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// CronHandler triggers a dispatch pass on demand
type CronHandler struct {
	BaseHandler
	runner     CronRunner
	middleware []gin.HandlerFunc
	now        func() time.Time
}

// NewCronHandler creates a new CronHandler. middleware, such as a rate
// limiter, runs in front of the cron route only.
func NewCronHandler(runner CronRunner, middleware ...gin.HandlerFunc) *CronHandler {
	return &CronHandler{runner: runner, middleware: middleware, now: time.Now}
}

// RegisterRoutes mounts the cron route
func (h *CronHandler) RegisterRoutes(rg *gin.RouterGroup) {
	handlers := append(append([]gin.HandlerFunc{}, h.middleware...), h.Run)
	rg.POST("/cron/run", handlers...)
}

// Run handles POST /cron/run
func (h *CronHandler) Run(c *gin.Context) {
	now := h.now().UTC()
	result, err := h.runner.RunCron(c.Request.Context(), now)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appbilling.ToCronRunResponse(result, now))
}
