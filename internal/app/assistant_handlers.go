package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/apperr"
)

type askReq struct {
	Question string `form:"question" json:"question"`
}

// askAssistant — сбой ассистента не ошибка страницы: 200 и success=false с подсказкой.
func (h *Handlers) askAssistant(c *gin.Context) {
	var req askReq
	if err := c.ShouldBind(&req); err != nil {
		fail(c, "", bindError(err))
		return
	}
	answer, err := h.assistant.Ask(c.Request.Context(), req.Question)
	if err != nil {
		e := apperr.As(err)
		if e.Kind != apperr.KindExternalService {
			fail(c, "", e)
			return
		}
		loggerOf(c).Warn("assistant unavailable", zap.Error(e))
		c.JSON(http.StatusOK, gin.H{"success": false, "error": e.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "answer": answer, "model": h.assistant.Model()})
}
