package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/membergate/membership-service/internal/domain/errors"
	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/repository"
	"github.com/membergate/membership-service/internal/usecase"
	apperrors "github.com/membergate/membership-service/pkg/errors"
)

// AdminHandler exposes manual member management for operators.
type AdminHandler struct {
	ledger       *usecase.SubscriptionLedger
	payments     *usecase.PaymentService
	memberRepo   repository.MemberRepository
	activityRepo repository.ActivityRepository
	logger       *zap.Logger
}

// NewAdminHandler creates a new admin handler instance
func NewAdminHandler(
	ledger *usecase.SubscriptionLedger,
	payments *usecase.PaymentService,
	memberRepo repository.MemberRepository,
	activityRepo repository.ActivityRepository,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		ledger:       ledger,
		payments:     payments,
		memberRepo:   memberRepo,
		activityRepo: activityRepo,
		logger:       logger,
	}
}

// RegisterRoutes registers admin routes on the given group.
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/members/:id", h.GetMember)
	g.POST("/members/:id/whitelist", h.WhitelistMember)
	g.DELETE("/members/:id/whitelist", h.UnwhitelistMember)
	g.POST("/members/:id/extend", h.ExtendMember)
	g.POST("/sessions", h.CreateSession)
	g.GET("/stats", h.GetStats)
}

func memberID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid member id")
	}
	return id, nil
}

// fail renders a coded error body with the status that code maps to.
func fail(c echo.Context, code, message string) error {
	return c.JSON(apperrors.HTTPStatus(code), echo.Map{"code": code, "error": message})
}

// GetMember returns a member's subscription state and recent activity.
func (h *AdminHandler) GetMember(c echo.Context) error {
	id, err := memberID(c)
	if err != nil {
		return fail(c, apperrors.ErrInvalidArgument, err.Error())
	}

	ctx := c.Request().Context()
	member, err := h.memberRepo.Get(ctx, id)
	if err != nil {
		h.logger.Error("Failed to get member", zap.Int64("user_id", id), zap.Error(err))
		return fail(c, apperrors.ErrInternal, "internal error")
	}
	if member == nil {
		return fail(c, apperrors.ErrNotFound, "member not found")
	}

	activity, err := h.activityRepo.ListByUser(ctx, id, 20)
	if err != nil {
		h.logger.Warn("Failed to list member activity", zap.Int64("user_id", id), zap.Error(err))
		activity = nil
	}

	return c.JSON(http.StatusOK, echo.Map{
		"member":   member,
		"activity": activity,
	})
}

// WhitelistMember grants permanent access.
func (h *AdminHandler) WhitelistMember(c echo.Context) error {
	id, err := memberID(c)
	if err != nil {
		return fail(c, apperrors.ErrInvalidArgument, err.Error())
	}

	if err := h.ledger.Whitelist(c.Request().Context(), id); err != nil {
		h.logger.Error("Failed to whitelist member", zap.Int64("user_id", id), zap.Error(err))
		return fail(c, apperrors.ErrInternal, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "whitelisted"})
}

// UnwhitelistMember returns a member to the billing cycle.
func (h *AdminHandler) UnwhitelistMember(c echo.Context) error {
	id, err := memberID(c)
	if err != nil {
		return fail(c, apperrors.ErrInvalidArgument, err.Error())
	}

	err = h.ledger.Unwhitelist(c.Request().Context(), id)
	switch {
	case errors.Is(err, domainErrors.ErrMemberNotFound):
		return fail(c, apperrors.ErrNotFound, "member not found")
	case err != nil:
		h.logger.Error("Failed to unwhitelist member", zap.Int64("user_id", id), zap.Error(err))
		return fail(c, apperrors.ErrInternal, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "unwhitelisted"})
}

// ExtendMemberRequest is the manual extension body.
type ExtendMemberRequest struct {
	Days int `json:"days" validate:"required,min=1,max=365"`
}

// ExtendMember grants extra days outside the payment flow.
func (h *AdminHandler) ExtendMember(c echo.Context) error {
	id, err := memberID(c)
	if err != nil {
		return fail(c, apperrors.ErrInvalidArgument, err.Error())
	}

	var req ExtendMemberRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, apperrors.ErrInvalidArgument, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, apperrors.ErrInvalidArgument, err.Error())
	}

	next, err := h.ledger.ExtendManual(c.Request().Context(), id, req.Days)
	switch {
	case errors.Is(err, domainErrors.ErrMemberNotFound):
		return fail(c, apperrors.ErrNotFound, "member not found")
	case errors.Is(err, domainErrors.ErrMemberWhitelisted):
		return fail(c, apperrors.ErrConflict, "member is whitelisted")
	case err != nil:
		h.logger.Error("Failed to extend member", zap.Int64("user_id", id), zap.Error(err))
		return fail(c, apperrors.ErrInternal, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":            "extended",
		"next_payment_date": next.Format("2006-01-02"),
	})
}

// CreateSessionRequest is the session creation body.
type CreateSessionRequest struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	Username string `json:"username"`
}

// CreateSession opens a payment session for a user on behalf of an operator.
func (h *AdminHandler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, apperrors.ErrInvalidArgument, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, apperrors.ErrInvalidArgument, err.Error())
	}

	handle, err := h.payments.CreateSession(c.Request().Context(), req.UserID, req.Username)
	if err != nil {
		h.logger.Error("Failed to create payment session",
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment rails unavailable"})
	}

	return c.JSON(http.StatusCreated, handle)
}

// GetStats returns subscription counts and revenue aggregates.
func (h *AdminHandler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.ledger.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to collect subscription stats", zap.Error(err))
		return fail(c, apperrors.ErrInternal, "internal error")
	}

	revenue, err := h.payments.Revenue(ctx)
	if err != nil {
		h.logger.Error("Failed to collect revenue stats", zap.Error(err))
		return fail(c, apperrors.ErrInternal, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"subscriptions": echo.Map{
			"active":      counts[model.MemberStatusActive],
			"expired":     counts[model.MemberStatusExpired],
			"whitelisted": counts[model.MemberStatusWhitelisted],
		},
		"revenue": revenue,
	})
}
