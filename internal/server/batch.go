package server

import (
	"net/http"
	"strings"

	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) SubmitBatch(c *gin.Context) {
	var req invoicedomain.SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.SubmitBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetBatchByNumber also polls the authority, so a GET can move members out of
// SUBMITTED when the lot has been processed.
func (s *Server) GetBatchByNumber(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	batch, members, err := s.invoiceSvc.GetBatch(c.Request.Context(), invoicedomain.GetBatchRequest{
		BatchNumber: number,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"batch":    batch,
		"invoices": members,
	}})
}
