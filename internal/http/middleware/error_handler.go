package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

// ErrorHandler обрабатывает ошибки централизованно: переводит
// apperror в HTTP ответы, маскирует внутренние ошибки. Для
// ORPHANED_ON_CHAIN в ответ дополнительно кладётся tx id — клиент
// обязан увидеть, что транзакция прошла, хотя запись не удалась.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			fields := logrus.Fields{
				"code":   appErr.Code,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}
			if appErr.TxID != "" {
				fields["tx_id"] = appErr.TxID
			}
			entry := logger.Log.WithFields(fields)
			if appErr.Cause != nil {
				entry = entry.WithError(appErr.Cause)
			}
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				entry.Error("Request error")
			} else {
				entry.Info("Request rejected")
			}

			body := gin.H{"error": appErr.Message, "code": appErr.Code}
			if appErr.TxID != "" {
				body["tx_id"] = appErr.TxID
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ресурс не найден", "code": apperror.ErrCodeNotFound})
			return
		}

		logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера", "code": apperror.ErrCodeInternal})
	}
}
