package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type initiatePaymentRequest struct {
	BookingID string `json:"bookingId" binding:"required,uuid"`
}

// POST /api/payments/initiate
func (h Handlers) InitiatePayment(c *gin.Context) {
	customerID, ok := requireCustomer(c)
	if !ok {
		return
	}
	var req initiatePaymentRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	order, err := h.Payments.InitiatePayment(c.Request.Context(), req.BookingID, customerID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

type verifyPaymentRequest struct {
	ProviderOrderID   string `json:"providerOrderId" binding:"required"`
	ProviderPaymentID string `json:"providerPaymentId" binding:"required"`
	ProviderSignature string `json:"providerSignature" binding:"required"`
}

// POST /api/payments/verify
func (h Handlers) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	b, err := h.Payments.VerifyPayment(c.Request.Context(), req.ProviderOrderID, req.ProviderPaymentID, req.ProviderSignature)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}
