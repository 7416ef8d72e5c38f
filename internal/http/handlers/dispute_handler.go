package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type DisputeHandler struct {
	svc *service.DisputeService
}

func NewDisputeHandler(svc *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: svc}
}

// CreateDispute POST /disputes
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req struct {
		ProjectID    int64   `json:"projectId" binding:"required"`
		MilestoneNum int     `json:"milestoneNum" binding:"required"`
		Reason       string  `json:"reason" binding:"required"`
		EvidenceURL  *string `json:"evidenceUrl"`
		DisputeTxID  *string `json:"disputeTxId"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	dispute, err := h.svc.File(c.Request.Context(), userID, service.FileDisputeInput{
		ProjectID:    req.ProjectID,
		MilestoneNum: req.MilestoneNum,
		Reason:       req.Reason,
		EvidenceURL:  req.EvidenceURL,
		DisputeTxID:  req.DisputeTxID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// ListByProject GET /projects/:id/disputes
func (h *DisputeHandler) ListByProject(c *gin.Context) {
	projectID, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	disputes, err := h.svc.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, disputes)
}
