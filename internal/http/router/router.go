package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/http/handler/webhook"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
)

type RouterConfig struct {
	Webhook webhook.Config
}

func SetupRoutes(router *gin.Engine, producer queue.Producer, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	gitlabHandler := webhook.NewGitLabWebhookHandler(producer, cfg.Webhook)
	WebhookRouter(router.Group("/webhooks"), gitlabHandler)
}
