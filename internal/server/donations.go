package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	donationdomain "github.com/classfund/classfund/internal/donation/domain"
)

func (s *Server) CreateDonation(c *gin.Context) {
	var req donationdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.donationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetDonationByID(c *gin.Context) {
	resp, err := s.donationSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ConfirmDonation(c *gin.Context) {
	resp, err := s.donationSvc.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RefundDonation holds a short per-donation lock while the refund runs so a
// double submit cannot reach the payment provider twice.
func (s *Server) RefundDonation(c *gin.Context) {
	var req donationdomain.RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	donationID := c.Param("id")
	token, ok := s.limiter.TryLockRefund(c.Request.Context(), donationID)
	if !ok {
		AbortWithError(c, ErrConflict)
		return
	}
	defer s.limiter.ReleaseRefund(c.Request.Context(), donationID, token)

	resp, err := s.donationSvc.Refund(c.Request.Context(), donationID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListCampaignDonations(c *gin.Context) {
	resp, err := s.donationSvc.ListByCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
