package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	withdrawaldomain "github.com/tunevault/tunevault/internal/withdrawal/domain"
)

type requestWithdrawalBody struct {
	Amount       int64  `json:"amount"`
	MobileNumber string `json:"mobile_number"`
}

func (s *Server) RequestWithdrawal(c *gin.Context) {
	artistID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body requestWithdrawalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.withdrawalSvc.Request(c.Request.Context(), withdrawaldomain.RequestWithdrawalRequest{
		ArtistID:     artistID,
		Amount:       body.Amount,
		MobileNumber: strings.TrimSpace(body.MobileNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetArtistEarnings(c *gin.Context) {
	artistID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.withdrawalSvc.ArtistEarnings(c.Request.Context(), artistID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListWithdrawals(c *gin.Context) {
	resp, err := s.withdrawalSvc.List(c.Request.Context(), withdrawaldomain.ListRequest{
		Status:    withdrawaldomain.Status(strings.TrimSpace(c.Query("status"))),
		PageToken: c.Query("page_token"),
		PageSize:  parsePageSize(c.Query("page_size")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type approveWithdrawalBody struct {
	Notes string `json:"notes"`
}

func (s *Server) ApproveWithdrawal(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body approveWithdrawalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	withdrawal, err := s.withdrawalSvc.Approve(c.Request.Context(), withdrawaldomain.ApproveRequest{
		ID:      id,
		AdminID: adminID,
		Notes:   strings.TrimSpace(body.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

type rejectWithdrawalBody struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectWithdrawal(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body rejectWithdrawalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	withdrawal, err := s.withdrawalSvc.Reject(c.Request.Context(), withdrawaldomain.RejectRequest{
		ID:           id,
		AdminID:      adminID,
		RejectReason: strings.TrimSpace(body.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

type markPaidBody struct {
	TransactionReference string `json:"transaction_reference"`
}

func (s *Server) MarkWithdrawalPaid(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body markPaidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	withdrawal, err := s.withdrawalSvc.MarkPaid(c.Request.Context(), withdrawaldomain.MarkPaidRequest{
		ID:                   id,
		TransactionReference: strings.TrimSpace(body.TransactionReference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

func (s *Server) GetWithdrawalDashboard(c *gin.Context) {
	dashboard, err := s.withdrawalSvc.Dashboard(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}
