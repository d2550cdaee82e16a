package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/payment/gateway"
)

type initiatePurchaseBody struct {
	TrackID     string `json:"track_id"`
	Amount      int64  `json:"amount"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

func (s *Server) InitiatePurchase(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body initiatePurchaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	trackID, err := parseBodyID(body.TrackID, "track_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.InitiatePurchase(c.Request.Context(), paymentdomain.InitiatePurchaseRequest{
		BuyerID:     buyerID,
		TrackID:     trackID,
		Amount:      body.Amount,
		PhoneNumber: strings.TrimSpace(body.PhoneNumber),
		Email:       strings.TrimSpace(body.Email),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	reference := strings.TrimSpace(c.Param("orderId"))
	if reference == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp, err := s.paymentSvc.GetPaymentStatus(c.Request.Context(), reference, buyerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListPurchases(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.paymentSvc.ListPurchases(c.Request.Context(), paymentdomain.ListRequest{
		BuyerID:   buyerID,
		Status:    paymentdomain.Status(strings.TrimSpace(c.Query("status"))),
		PageToken: c.Query("page_token"),
		PageSize:  parsePageSize(c.Query("page_size")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetSellerEarnings(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.paymentSvc.SellerEarnings(c.Request.Context(), sellerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// settlementParams is what the gateway delivers on both the server-to-server
// IPN and the browser callback. The same fields arrive as query parameters or
// as a JSON body depending on the channel.
type settlementParams struct {
	OrderTrackingID        string `form:"OrderTrackingId" json:"OrderTrackingId"`
	OrderMerchantReference string `form:"OrderMerchantReference" json:"OrderMerchantReference"`
	StatusCode             string `form:"StatusCode" json:"StatusCode"`
}

func (s *Server) HandleSettlementWebhook(c *gin.Context) {
	var params settlementParams
	if strings.Contains(c.ContentType(), "json") {
		_ = c.ShouldBindJSON(&params)
	}
	if strings.TrimSpace(params.OrderMerchantReference) == "" {
		_ = c.ShouldBindQuery(&params)
	}

	payment, err := s.settle(c, params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderTrackingId":        params.OrderTrackingID,
		"orderMerchantReference": params.OrderMerchantReference,
		"status":                 http.StatusOK,
		"payment_status":         payment.Status,
	})
}

func (s *Server) HandleSettlementCallback(c *gin.Context) {
	var params settlementParams
	if err := c.ShouldBindQuery(&params); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.settle(c, params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": payment.ExternalReferenceID,
		"status":   payment.Status,
	})
}

func (s *Server) settle(c *gin.Context, params settlementParams) (paymentdomain.Payment, error) {
	reference := strings.TrimSpace(params.OrderMerchantReference)
	rawCode := strings.TrimSpace(params.StatusCode)
	if rawCode == "" {
		return paymentdomain.Payment{}, newValidationError("StatusCode", "required", "status code is required")
	}
	mapped, _ := gateway.MapStatusCode(rawCode)

	return s.paymentSvc.HandleSettlement(c.Request.Context(), paymentdomain.SettlementNotice{
		Reference:            reference,
		Status:               mapped,
		GatewayTransactionID: strings.TrimSpace(params.OrderTrackingID),
		RawCode:              rawCode,
	})
}
