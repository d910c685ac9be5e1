package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/factory"
)

// CreateEvent 创建日程事件
func CreateEvent(ctx *gin.Context) {
	var req model.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := factory.GetSchedule().Create(ctx.Request.Context(), &req)
	if err != nil {
		log.Errorf("CreateEvent error: %v", err)
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, event)
}

// GetEvent 按 id 查询日程事件
func GetEvent(ctx *gin.Context) {
	event, err := factory.GetSchedule().Get(ctx.Request.Context(), ctx.Param("event_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, event)
}

// ListEvents 列出日程事件，date 参数按日过滤
func ListEvents(ctx *gin.Context) {
	events, err := factory.GetSchedule().List(ctx.Request.Context(), ctx.Query("date"))
	if err != nil {
		log.Errorf("ListEvents error: %v", err)
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// UpdateEvent 更新日程事件，未提供的字段保持原值
func UpdateEvent(ctx *gin.Context) {
	var req model.UpdateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := factory.GetSchedule().Update(ctx.Request.Context(), ctx.Param("event_id"), &req)
	if err != nil {
		log.Errorf("UpdateEvent error: %v", err)
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, event)
}

// DeleteEvent 删除日程事件
func DeleteEvent(ctx *gin.Context) {
	if err := factory.GetSchedule().Delete(ctx.Request.Context(), ctx.Param("event_id")); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SearchEvents 按自然语言检索日程事件，查询里的时间限定转成元数据过滤
func SearchEvents(ctx *gin.Context) {
	query := ctx.Query("q")
	k := cast.ToInt(ctx.DefaultQuery("k", cast.ToString(constant.DefaultSearchTopK)))

	hits, err := factory.GetSchedule().Search(ctx.Request.Context(), query, k, time.Now())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"hits": hits, "count": len(hits)})
}
