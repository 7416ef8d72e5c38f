package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type MilestoneHandler struct {
	svc *service.MilestoneService
}

func NewMilestoneHandler(svc *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{svc: svc}
}

// SubmitWork POST /milestones/submit
func (h *MilestoneHandler) SubmitWork(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req struct {
		ProjectID      int64  `json:"projectId" binding:"required"`
		MilestoneNum   int    `json:"milestoneNum" binding:"required"`
		DeliverableURL string `json:"deliverableUrl" binding:"required"`
		Note           string `json:"note"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	submission, err := h.svc.SubmitWork(c.Request.Context(), req.ProjectID, req.MilestoneNum, userID, req.DeliverableURL, req.Note)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

// ApproveSubmission PATCH /milestones/:id/approve
func (h *MilestoneHandler) ApproveSubmission(c *gin.Context) {
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

	var req struct {
		ReleaseTxID string `json:"releaseTxId" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	project, err := h.svc.Approve(c.Request.Context(), id, userID, req.ReleaseTxID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// RejectSubmission PATCH /milestones/:id/reject
func (h *MilestoneHandler) RejectSubmission(c *gin.Context) {
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

	submission, err := h.svc.RejectSubmission(c.Request.Context(), id, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, submission)
}

// ListSubmissions GET /projects/:id/submissions
func (h *MilestoneHandler) ListSubmissions(c *gin.Context) {
	projectID, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	submissions, err := h.svc.ListSubmissions(c.Request.Context(), projectID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, submissions)
}
