package approuters

import (
	"NeuroBot/internal/configuration"

	"github.com/gin-gonic/gin"
)

func ConversationRouters(router *gin.Engine, container *configuration.Container) {
	conversationRoute := router.Group("/api/conversations/:id")
	{
		conversationRoute.GET("/messages", container.ConversationHandler.GetMessages)
		conversationRoute.GET("/summaries", container.ConversationHandler.GetSummaries)
		conversationRoute.POST("/summaries", container.ConversationHandler.CreateSummary)
	}
}
