package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

type ProjectHandler struct {
	svc *service.MilestoneService
}

func NewProjectHandler(svc *service.MilestoneService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// CreateProject POST /projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req service.CreateProjectInput
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	project, err := h.svc.CreateProject(c.Request.Context(), userID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// ListProjects GET /projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	status := valueobject.ProjectStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неизвестный статус проекта"})
		return
	}

	projects, err := h.svc.ListProjects(c.Request.Context(), status, c.Query("category"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// GetProject GET /projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	project, err := h.svc.GetProject(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// ActivateProject PATCH /projects/:id/activate
func (h *ProjectHandler) ActivateProject(c *gin.Context) {
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
		EscrowTxID string `json:"escrowTxId" binding:"required"`
		// Указатель: нулевой on-chain индекс легитимен, required на
		// int64 отверг бы его как отсутствующий.
		OnChainID *int64 `json:"onChainId" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	project, err := h.svc.Activate(c.Request.Context(), id, userID, req.EscrowTxID, *req.OnChainID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// GetProgress GET /projects/:id/progress
func (h *ProjectHandler) GetProgress(c *gin.Context) {
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	progress, err := h.svc.Progress(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
