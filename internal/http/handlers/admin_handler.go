package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// AdminHandler — арбитраж споров, принудительное восстановление,
// передача владения контрактом и ручная сверка.
type AdminHandler struct {
	disputes  *service.DisputeService
	admin     *service.AdminService
	ownership *service.OwnershipService
}

func NewAdminHandler(disputes *service.DisputeService, admin *service.AdminService, ownership *service.OwnershipService) *AdminHandler {
	return &AdminHandler{disputes: disputes, admin: admin, ownership: ownership}
}

// ResolveDispute PATCH /admin/disputes/:id/resolve
func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
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
		Resolution      string  `json:"resolution" binding:"required"`
		ResolutionTxID  *string `json:"resolutionTxId"`
		FavorFreelancer bool    `json:"favorFreelancer"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	dispute, err := h.disputes.Resolve(c.Request.Context(), id, adminID, req.Resolution, req.ResolutionTxID, req.FavorFreelancer)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ResetDispute PATCH /admin/disputes/:id/reset
func (h *AdminHandler) ResetDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
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
		Note string `json:"note" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	dispute, err := h.disputes.Reset(c.Request.Context(), id, adminID, req.Note)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ForceRelease PATCH /admin/recovery/force-release
func (h *AdminHandler) ForceRelease(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req struct {
		ProjectID    int64  `json:"projectId" binding:"required"`
		MilestoneNum int    `json:"milestoneNum" binding:"required"`
		TxID         string `json:"txId" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	project, err := h.admin.ForceRelease(c.Request.Context(), req.ProjectID, req.MilestoneNum, req.TxID, adminID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// ForceRefund PATCH /admin/recovery/force-refund
func (h *AdminHandler) ForceRefund(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req struct {
		ProjectID int64  `json:"projectId" binding:"required"`
		TxID      string `json:"txId" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	project, err := h.admin.ForceRefund(c.Request.Context(), req.ProjectID, req.TxID, adminID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// ListMarkers GET /admin/reconciliation
func (h *AdminHandler) ListMarkers(c *gin.Context) {
	markers, err := h.admin.ListMarkers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, markers)
}

// ReplayMarker PATCH /admin/reconciliation/:id/replay
func (h *AdminHandler) ReplayMarker(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	marker, err := h.admin.Replay(c.Request.Context(), id, adminID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, marker)
}

// ProposeOwnership POST /admin/ownership/propose
func (h *AdminHandler) ProposeOwnership(c *gin.Context) {
	var req struct {
		NewOwner string `json:"newOwner" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	txID, err := h.ownership.Propose(c.Request.Context(), req.NewOwner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txID})
}

// AcceptOwnership POST /admin/ownership/accept
func (h *AdminHandler) AcceptOwnership(c *gin.Context) {
	txID, err := h.ownership.Accept(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txID})
}

// GetOwnership GET /admin/ownership
func (h *AdminHandler) GetOwnership(c *gin.Context) {
	state, err := h.ownership.State(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, state)
}
