package handlers

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/storage"
)

type UploadHandler struct {
	storage *storage.EvidenceStorage
}

func NewUploadHandler(storage *storage.EvidenceStorage) *UploadHandler {
	return &UploadHandler{storage: storage}
}

// Upload POST /uploads — принимает артефакт сдачи или доказательство
// по спору и возвращает ссылку для deliverableUrl / evidenceUrl.
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(apperror.New(apperror.ErrCodeValidation, "поле file обязательно"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(apperror.Wrap(err, apperror.ErrCodeBadRequest, "не удалось прочитать файл"))
		return
	}
	defer f.Close()

	relative, size, err := h.storage.Save(c.Request.Context(), userID, fileHeader.Filename, f)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"url":  path.Join("/uploads", relative),
		"size": size,
	})
}
