package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/gateway"
	"gateway-reconciler/internal/openinvoice"
	"gateway-reconciler/internal/payment"
	"gateway-reconciler/internal/repo"
	"gateway-reconciler/internal/service"

	"github.com/gin-gonic/gin"
)

// Error is an error with the HTTP status it should be reported with.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func BadRequest(err error) *Error {
	return New(http.StatusBadRequest, "Invalid input", err)
}

// From classifies err by the sentinel it wraps.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrTransactionNotFound):
		return New(http.StatusNotFound, "Not found", err)
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, service.ErrOrderNotPending),
		errors.Is(err, service.ErrNothingToCapture),
		errors.Is(err, repo.ErrDuplicateReference):
		return New(http.StatusConflict, "Conflict", err)
	case errors.Is(err, openinvoice.ErrTaxDivideByZero),
		errors.Is(err, openinvoice.ErrInvalidQuantity),
		errors.Is(err, openinvoice.ErrInvalidGender),
		errors.Is(err, openinvoice.ErrMissingPhone),
		errors.Is(err, openinvoice.ErrUnderage),
		errors.Is(err, payment.ErrUnknownType),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, domain.ErrMalformedNotification),
		errors.Is(err, domain.ErrMalformedResponse):
		return New(http.StatusUnprocessableEntity, "Unprocessable entity", err)
	case errors.Is(err, gateway.ErrTimeout):
		return New(http.StatusGatewayTimeout, "Gateway timeout", err)
	}
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// Middleware renders the last error a handler attached with c.Error.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := From(c.Errors.Last().Err)
		body := gin.H{"code": appErr.Code, "message": appErr.Message}
		if appErr.Err != nil && appErr.Code < http.StatusInternalServerError {
			body["error"] = appErr.Err.Error()
		}
		c.AbortWithStatusJSON(appErr.Code, body)
	}
}
