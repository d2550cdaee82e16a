package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	monetizationdomain "github.com/tunevault/tunevault/internal/monetization/domain"
)

func (s *Server) ApplyForMonetization(c *gin.Context) {
	creatorID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.monetizationSvc.Apply(c.Request.Context(), creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetMonetizationStatus(c *gin.Context) {
	creatorID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.monetizationSvc.CheckStatus(c.Request.Context(), creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetEarningsReport(c *gin.Context) {
	creatorID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_time", "invalid time"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_time", "invalid time"))
		return
	}

	report, err := s.monetizationSvc.Report(c.Request.Context(), creatorID, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

type requestPayoutBody struct {
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
}

func (s *Server) RequestEarningsPayout(c *gin.Context) {
	creatorID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body requestPayoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.monetizationSvc.RequestPayout(c.Request.Context(), monetizationdomain.RequestPayoutRequest{
		CreatorID:     creatorID,
		Amount:        body.Amount,
		PaymentMethod: strings.TrimSpace(body.PaymentMethod),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Server) ListMonetizationAccounts(c *gin.Context) {
	req := monetizationdomain.ListRequest{
		Status:    monetizationdomain.Status(strings.TrimSpace(c.Query("status"))),
		PageToken: c.Query("page_token"),
		PageSize:  parsePageSize(c.Query("page_size")),
	}

	resp, err := s.monetizationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListPendingApplications(c *gin.Context) {
	accounts, err := s.monetizationSvc.PendingApplications(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applications": accounts})
}

type approveMonetizationBody struct {
	EarningsRate       *float64 `json:"earnings_rate"`
	PlatformCommission *float64 `json:"platform_commission"`
	AdminNotes         string   `json:"admin_notes"`
}

func (s *Server) ApproveMonetization(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body approveMonetizationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.monetizationSvc.Approve(c.Request.Context(), monetizationdomain.ApproveRequest{
		ID:                 id,
		EarningsRate:       body.EarningsRate,
		PlatformCommission: body.PlatformCommission,
		AdminNotes:         strings.TrimSpace(body.AdminNotes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

type rejectMonetizationBody struct {
	Reason     string `json:"reason"`
	AdminNotes string `json:"admin_notes"`
}

func (s *Server) RejectMonetization(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body rejectMonetizationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.monetizationSvc.Reject(c.Request.Context(), monetizationdomain.RejectRequest{
		ID:              id,
		RejectionReason: strings.TrimSpace(body.Reason),
		AdminNotes:      strings.TrimSpace(body.AdminNotes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

type suspendMonetizationBody struct {
	AdminNotes string `json:"admin_notes"`
}

func (s *Server) SuspendMonetization(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body suspendMonetizationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.monetizationSvc.Suspend(c.Request.Context(), monetizationdomain.SuspendRequest{
		ID:         id,
		AdminNotes: strings.TrimSpace(body.AdminNotes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

type updateEarningsConfigBody struct {
	EarningsRate       *float64 `json:"earnings_rate"`
	PlatformCommission *float64 `json:"platform_commission"`
	AdminNotes         *string  `json:"admin_notes"`
}

func (s *Server) UpdateEarningsConfig(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body updateEarningsConfigBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.monetizationSvc.UpdateEarningsConfig(c.Request.Context(), monetizationdomain.UpdateConfigRequest{
		ID:                 id,
		EarningsRate:       body.EarningsRate,
		PlatformCommission: body.PlatformCommission,
		AdminNotes:         body.AdminNotes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

type processPayoutBody struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

func (s *Server) ProcessEarningsPayout(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payoutID := strings.TrimSpace(c.Param("payoutId"))
	if payoutID == "" {
		AbortWithError(c, newValidationError("payout_id", "required", "payout id is required"))
		return
	}

	var body processPayoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.monetizationSvc.ProcessPayout(c.Request.Context(), monetizationdomain.ProcessPayoutRequest{
		AccountID: id,
		PayoutID:  payoutID,
		Status:    monetizationdomain.PayoutStatus(strings.TrimSpace(body.Status)),
		Reference: strings.TrimSpace(body.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}
