package server

import (
	"errors"
	"net/http"
	"strings"

	returnsdomain "github.com/arandulabs/kuatia/internal/returns/domain"
	"github.com/arandulabs/kuatia/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateReturn(c *gin.Context) {
	var req returnsdomain.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.returnSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReturns(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
		Kind   string `form:"kind"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.returnSvc.List(c.Request.Context(), returnsdomain.ListReturnRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Status:    strings.TrimSpace(query.Status),
		Kind:      strings.TrimSpace(query.Kind),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReturnByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.returnSvc.GetByID(c.Request.Context(), returnsdomain.GetReturnRequest{
		ID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListReturnReceipts shows the stock intake booked while a goods return
// completed.
func (s *Server) ListReturnReceipts(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid value"))
		return
	}

	receipts, err := s.warehouseSvc.ListByReturn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipts})
}

func (s *Server) ReviewReturn(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.returnSvc.Review(c.Request.Context(), returnsdomain.ReviewReturnRequest{
		ID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type approveReturnRequest struct {
	ApprovedBy         string `json:"approved_by"`
	GenerateCreditNote bool   `json:"generate_credit_note"`
}

func (s *Server) ApproveReturn(c *gin.Context) {
	var req approveReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.returnSvc.Approve(c.Request.Context(), returnsdomain.ApproveReturnRequest{
		ID:                 strings.TrimSpace(c.Param("id")),
		ApprovedBy:         strings.TrimSpace(req.ApprovedBy),
		GenerateCreditNote: req.GenerateCreditNote,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type closeReturnRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectReturn(c *gin.Context) {
	var req closeReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.returnSvc.Reject(c.Request.Context(), returnsdomain.RejectReturnRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelReturn(c *gin.Context) {
	var req closeReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.returnSvc.Cancel(c.Request.Context(), returnsdomain.CancelReturnRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isReturnValidationError(err error) bool {
	switch {
	case errors.Is(err, returnsdomain.ErrInvalidKind),
		errors.Is(err, returnsdomain.ErrMissingOriginRef),
		errors.Is(err, returnsdomain.ErrInvalidLines),
		errors.Is(err, returnsdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}
