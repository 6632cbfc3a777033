package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/middleware"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, actor *models.JWTClaims, req dto.RegisterRequest) (*models.RegistrationDetail, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.RegistrationDetail, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) error
	UpdateAttendance(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttendanceRequest) (*models.RegistrationDetail, error)
}

type seatService interface {
	Summary(ctx context.Context, classID string) (*models.SeatSummary, bool, error)
}

// RegistrationHandler exposes registration and seat endpoints.
type RegistrationHandler struct {
	registrations registrationService
	seats         seatService
	validate      *validator.Validate
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations registrationService, seats seatService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, seats: seats, validate: validator.New()}
}

// Register godoc
// @Summary Register a participant into a class
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	reg, err := h.registrations.Register(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// List godoc
// @Summary List registrations
// @Tags Registrations
// @Produce json
// @Param classId query string false "Filter by class"
// @Param participantId query string false "Filter by participant"
// @Param regStatus query string false "PENDING, REGISTERED or REJECTED"
// @Param paymentStatus query string false "UNPAID, PARTIAL, PENDING, PAID or REJECTED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	var query dto.RegistrationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	query.RegStatus = strings.ToUpper(query.RegStatus)
	query.PaymentStatus = strings.ToUpper(query.PaymentStatus)
	if err := h.validate.Struct(query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	items, pagination, err := h.registrations.List(c.Request.Context(), claimsFromContext(c), query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	reg, err := h.registrations.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Cancel godoc
// @Summary Cancel registration
// @Description Deletes the registration with its payments, certificates and value reports.
// @Tags Registrations
// @Param id path string true "Registration ID"
// @Success 204
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	if err := h.registrations.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateAttendance godoc
// @Summary Update attended days
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.AttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/attendance [put]
func (h *RegistrationHandler) UpdateAttendance(c *gin.Context) {
	var req dto.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	reg, err := h.registrations.UpdateAttendance(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Seats godoc
// @Summary Remaining seats of a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/seats [get]
func (h *RegistrationHandler) Seats(c *gin.Context) {
	summary, hit, err := h.seats.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
