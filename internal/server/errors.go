package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"github.com/tunevault/tunevault/internal/earnings"
	monetizationdomain "github.com/tunevault/tunevault/internal/monetization/domain"
	paymentdomain "github.com/tunevault/tunevault/internal/payment/domain"
	"github.com/tunevault/tunevault/internal/payment/gateway"
	withdrawaldomain "github.com/tunevault/tunevault/internal/withdrawal/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details any               `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

type insufficientBalanceDetails struct {
	AvailableBalance int64 `json:"available_balance"`
	TotalEarnings    int64 `json:"total_earnings"`
	TotalWithdrawn   int64 `json:"total_withdrawn"`
}

type insufficientEarningsDetails struct {
	AvailableEarnings float64 `json:"available_earnings"`
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var balanceErr *withdrawaldomain.InsufficientBalanceError
	if errors.As(err, &balanceErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient balance",
			Details: insufficientBalanceDetails{
				AvailableBalance: balanceErr.AvailableBalance,
				TotalEarnings:    balanceErr.TotalEarnings,
				TotalWithdrawn:   balanceErr.TotalWithdrawn,
			},
		}
	}

	var earningsErr *monetizationdomain.InsufficientEarningsError
	if errors.As(err, &earningsErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "insufficient_earnings",
			Message: "insufficient pending earnings",
			Details: insufficientEarningsDetails{
				AvailableEarnings: earningsErr.Available,
			},
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "rate limit exceeded",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, gateway.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "payment gateway unavailable",
		}
	case errors.Is(err, paymentdomain.ErrGatewayRejected):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_rejected",
			Message: "payment gateway rejected the order",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, earnings.ErrInvalidPlayCount),
		errors.Is(err, earnings.ErrInvalidRate),
		errors.Is(err, earnings.ErrInvalidCommission),
		errors.Is(err, monetizationdomain.ErrInvalidAmount),
		errors.Is(err, monetizationdomain.ErrBelowMinimumPayout),
		errors.Is(err, monetizationdomain.ErrInvalidPayoutStatus),
		errors.Is(err, monetizationdomain.ErrReasonRequired),
		errors.Is(err, monetizationdomain.ErrEligibilityNotMet),
		errors.Is(err, monetizationdomain.ErrNotApproved),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrPhoneRequired),
		errors.Is(err, paymentdomain.ErrAmountMismatch),
		errors.Is(err, paymentdomain.ErrTrackNotForSale),
		errors.Is(err, withdrawaldomain.ErrInvalidAmount),
		errors.Is(err, withdrawaldomain.ErrMobileRequired),
		errors.Is(err, withdrawaldomain.ErrBelowMinimum),
		errors.Is(err, withdrawaldomain.ErrReasonRequired):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, monetizationdomain.ErrAlreadyApplied),
		errors.Is(err, monetizationdomain.ErrInvalidTransition),
		errors.Is(err, monetizationdomain.ErrPayoutAlreadyFinal),
		errors.Is(err, paymentdomain.ErrStatusConflict),
		errors.Is(err, withdrawaldomain.ErrInvalidTransition),
		errors.Is(err, withdrawaldomain.ErrBalanceBusy):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, monetizationdomain.ErrNotFound),
		errors.Is(err, monetizationdomain.ErrPayoutNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrTrackNotFound),
		errors.Is(err, withdrawaldomain.ErrNotFound),
		errors.Is(err, creatorstats.ErrTrackNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
