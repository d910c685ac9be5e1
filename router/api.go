package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/controller"
)

func addBasicRouter(engine *gin.Engine) {
	engine.GET("/health", controller.Health)
}

func addApiRouter(engine *gin.Engine) {

	api := engine.Group("/api")
	{
		api.GET("/health", controller.Health)

		// 聊天
		api.POST("/agent/chat", controller.Chat)

		// 日程事件 CRUD 与检索
		api.POST("/schedule/events", controller.CreateEvent)
		api.GET("/schedule/events", controller.ListEvents)
		api.GET("/schedule/events/:event_id", controller.GetEvent)
		api.PUT("/schedule/events/:event_id", controller.UpdateEvent)
		api.DELETE("/schedule/events/:event_id", controller.DeleteEvent)
		api.GET("/schedule/search", controller.SearchEvents)

		// 知识入库与检索
		api.POST("/rag/ingest", controller.RagIngest)
		api.GET("/rag/search", controller.RagSearch)
		api.POST("/rag/delete", controller.RagDelete)

		// 联调辅助
		api.POST("/debug/emb", controller.DebugEmb)
		api.GET("/debug/ping_chroma", controller.DebugPingChroma)
		api.DELETE("/debug/reset", controller.DebugReset)
		api.GET("/debug/stats", controller.DebugStats)
		api.GET("/debug/export", controller.DebugExport)
	}
}
