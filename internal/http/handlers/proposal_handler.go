package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type ProposalHandler struct {
	svc *service.ProposalService
}

func NewProposalHandler(svc *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{svc: svc}
}

// CreateProposal POST /proposals
func (h *ProposalHandler) CreateProposal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req struct {
		ProjectID   int64  `json:"projectId" binding:"required"`
		CoverLetter string `json:"coverLetter" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	proposal, err := h.svc.Submit(c.Request.Context(), req.ProjectID, userID, req.CoverLetter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, proposal)
}

// AcceptProposal PATCH /proposals/:id/accept
func (h *ProposalHandler) AcceptProposal(c *gin.Context) {
	h.transition(c, h.svc.Accept)
}

// RejectProposal PATCH /proposals/:id/reject
func (h *ProposalHandler) RejectProposal(c *gin.Context) {
	h.transition(c, h.svc.Reject)
}

// WithdrawProposal PATCH /proposals/:id/withdraw
func (h *ProposalHandler) WithdrawProposal(c *gin.Context) {
	h.transition(c, h.svc.Withdraw)
}

// ListByProject GET /projects/:id/proposals
func (h *ProposalHandler) ListByProject(c *gin.Context) {
	projectID, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	proposals, err := h.svc.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, proposals)
}

func (h *ProposalHandler) transition(c *gin.Context, fn func(ctx context.Context, proposalID int64, callerID uuid.UUID) (*models.Proposal, error)) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	proposal, err := fn(c.Request.Context(), id, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}
