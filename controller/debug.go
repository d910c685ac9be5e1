package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/embedding"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/factory"
)

// DebugEmb 试算一段文本的向量，返回维度和前几个分量
func DebugEmb(ctx *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := embedding.GetInstance()
	if err != nil {
		writeError(ctx, model.NewError(model.ErrorConfig, err))
		return
	}

	vectors, err := client.Embed(ctx.Request.Context(), []string{req.Text})
	if err != nil {
		writeError(ctx, model.NewError(model.ErrorEmbedding, err))
		return
	}

	vector := vectors[0]
	head := vector
	if len(head) > 8 {
		head = head[:8]
	}
	ctx.JSON(http.StatusOK, gin.H{"dim": len(vector), "head": head})
}

// DebugPingChroma 向量库探活
func DebugPingChroma(ctx *gin.Context) {
	if err := factory.GetRetriever().Ping(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

// DebugReset 丢弃整个集合，仅用于联调
func DebugReset(ctx *gin.Context) {
	if err := factory.GetRetriever().Reset(ctx.Request.Context()); err != nil {
		log.Errorf("DebugReset error: %v", err)
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reset": true})
}

// DebugStats 集合规模和 embedding 调用统计
func DebugStats(ctx *gin.Context) {
	rows, err := factory.GetRetriever().GetAll(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}

	stats := gin.H{
		"collection": factory.GetRetriever().Collection(),
		"count":      len(rows),
	}
	if client, err := embedding.GetInstance(); err == nil {
		stats["embedding"] = client.GetMetrics()
	}
	ctx.JSON(http.StatusOK, stats)
}

// DebugExport 全量导出集合内容
func DebugExport(ctx *gin.Context) {
	rows, err := factory.GetRetriever().GetAll(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"records": rows, "count": len(rows)})
}
