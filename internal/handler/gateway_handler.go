package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-enrollment-api/internal/dto"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/pkg/gateway"
	"github.com/noah-isme/training-enrollment-api/pkg/response"
)

type gatewayService interface {
	Checkout(ctx context.Context, actor *models.JWTClaims, registrationID string) (*dto.CheckoutResponse, error)
	HandleNotification(ctx context.Context, n gateway.Notification) error
}

// GatewayHandler exposes online checkout and the provider callback.
type GatewayHandler struct {
	service gatewayService
}

// NewGatewayHandler constructs GatewayHandler.
func NewGatewayHandler(service gatewayService) *GatewayHandler {
	return &GatewayHandler{service: service}
}

// Checkout godoc
// @Summary Open a hosted checkout for the outstanding balance
// @Tags Payments
// @Produce json
// @Param id path string true "Registration ID"
// @Success 201 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /registrations/{id}/payments/checkout [post]
func (h *GatewayHandler) Checkout(c *gin.Context) {
	resp, err := h.service.Checkout(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Notification godoc
// @Summary Payment gateway notification callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body gateway.Notification true "Gateway notification"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /payments/gateway/notifications [post]
func (h *GatewayHandler) Notification(c *gin.Context) {
	var n gateway.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.service.HandleNotification(c.Request.Context(), n); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"orderId": n.OrderID, "status": "received"}, nil)
}
