package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/factory"
)

// RagIngest 批量入库知识条目，请求体为条目数组，超长文本自动切块
func RagIngest(ctx *gin.Context) {
	var items []model.IngestItem
	if err := ctx.ShouldBindJSON(&items); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := factory.GetRag().Ingest(ctx.Request.Context(), items)
	if err != nil {
		log.Errorf("RagIngest error: %v", err)
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ingested": count})
}

// RagSearch 自然语言检索知识库
func RagSearch(ctx *gin.Context) {
	query := ctx.Query("q")
	k := cast.ToInt(ctx.DefaultQuery("k", cast.ToString(constant.DefaultSearchTopK)))

	rows, err := factory.GetRag().Search(ctx.Request.Context(), query, k)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": rows, "count": len(rows)})
}

// RagDelete 按 id 删除知识条目
func RagDelete(ctx *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := factory.GetRag().Delete(ctx.Request.Context(), req.IDs); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
}
