package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/http/handler/webhook"
)

func WebhookRouter(rg *gin.RouterGroup, h *webhook.GitLabWebhookHandler) {
	rg.POST("/gitlab", h.HandleEvent)
}
