package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	authdomain "github.com/classfund/classfund/internal/auth/domain"
	campaigndomain "github.com/classfund/classfund/internal/campaign/domain"
	"github.com/classfund/classfund/internal/usercontext"
)

type listCampaignsQuery struct {
	Status      string `form:"status"`
	OrganizerID string `form:"organizer_id"`
}

func (s *Server) CreateCampaign(c *gin.Context) {
	var req campaigndomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.campaignSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetCampaignByID(c *gin.Context) {
	resp, err := s.campaignSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListCampaigns(c *gin.Context) {
	var query listCampaignsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.campaignSvc.List(c.Request.Context(), campaigndomain.ListRequest{
		Status:      strings.TrimSpace(query.Status),
		OrganizerID: strings.TrimSpace(query.OrganizerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCampaign(c *gin.Context) {
	var req campaigndomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.campaignSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) PublishCampaign(c *gin.Context) {
	resp, err := s.campaignSvc.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CloseCampaign(c *gin.Context) {
	resp, err := s.campaignSvc.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetCampaignBalances exposes the per-account ledger position for a
// campaign. Only the campaign organizer or an admin may read it.
func (s *Server) GetCampaignBalances(c *gin.Context) {
	campaign, err := s.campaignSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, ok := usercontext.UserFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if user.Role != authdomain.RoleAdmin && campaign.OrganizerID != user.ID.String() {
		AbortWithError(c, ErrForbidden)
		return
	}

	campaignID, err := snowflake.ParseString(campaign.ID)
	if err != nil {
		AbortWithError(c, campaigndomain.ErrInvalidID)
		return
	}

	balances, err := s.ledgerSvc.Balances(c.Request.Context(), campaignID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign_id": campaign.ID,
		"balances":    balances,
	})
}
