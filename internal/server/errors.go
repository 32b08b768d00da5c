package server

import (
	"errors"
	"net/http"
	"strings"

	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	productdomain "github.com/arandulabs/kuatia/internal/product/domain"
	returnsdomain "github.com/arandulabs/kuatia/internal/returns/domain"
	"github.com/arandulabs/kuatia/internal/warehouse"
	"github.com/gin-gonic/gin"
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
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
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
	case errors.Is(err, invoicedomain.ErrAuthorityUnreachable):
		return http.StatusBadGateway, errorPayload{
			Type:    "authority_unreachable",
			Message: "tax authority unreachable",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a stable (type, code) pair
// without leaking raw error strings into structured fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", ""
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
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isCustomerValidationError(err),
		isProductValidationError(err),
		isOrderValidationError(err),
		isInvoiceValidationError(err),
		isReturnValidationError(err),
		isWarehouseValidationError(err):
		return true
	default:
		return false
	}
}

func isWarehouseValidationError(err error) bool {
	switch {
	case errors.Is(err, warehouse.ErrInvalidQuantity),
		errors.Is(err, warehouse.ErrInvalidCondition),
		errors.Is(err, warehouse.ErrInvalidReturn):
		return true
	default:
		return false
	}
}

// isConflictError covers state machine refusals: the request was well formed
// but the document is not in a state that admits it.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, invoicedomain.ErrIllegalTransition),
		errors.Is(err, invoicedomain.ErrInvoiceImmutable),
		errors.Is(err, invoicedomain.ErrAlreadySubmitted),
		errors.Is(err, invoicedomain.ErrNotPayable),
		errors.Is(err, invoicedomain.ErrPaymentExceedsBalance),
		errors.Is(err, invoicedomain.ErrCreditExceedsOriginal),
		errors.Is(err, invoicedomain.ErrReturnExceedsInvoiced),
		errors.Is(err, invoicedomain.ErrOriginalNotApproved),
		errors.Is(err, invoicedomain.ErrLocked),
		errors.Is(err, returnsdomain.ErrIllegalTransition),
		errors.Is(err, returnsdomain.ErrOriginNotEligible),
		errors.Is(err, returnsdomain.ErrQuantityExceeded),
		errors.Is(err, orderdomain.ErrOrderNotOpen),
		errors.Is(err, orderdomain.ErrQuantityExceeded),
		errors.Is(err, productdomain.ErrDuplicateCode):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrLineNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrBatchNotFound),
		errors.Is(err, returnsdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "invalid_request" {
		return "request"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
