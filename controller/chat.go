package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/constant"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/pkg/clients/httptool"
	"github.com/ZeroAurora/XDU-PD25-School-Agent/service/factory"
)

// Chat 聊天接口，stream=true 时走 SSE
func Chat(ctx *gin.Context) {
	var req model.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 空输入直接兜底回复，流式与否都不进检索和大模型
	if strings.TrimSpace(req.Message) == "" {
		ctx.JSON(http.StatusOK, model.EmptyReply{Reply: constant.EmptyMessageReply})
		return
	}

	now := time.Now()
	if req.Stream {
		streamChat(ctx, &req, now)
		return
	}

	res, err := factory.GetChat().Chat(ctx.Request.Context(), &req, now)
	if err != nil {
		log.Errorf("Chat error: %v", err)
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

// streamChat 把帧通道编码成 SSE。每帧一个 data 行，通道关闭即断流。
func streamChat(ctx *gin.Context, req *model.ChatRequest, now time.Time) {
	ctx.Header(httptool.HeaderContentType, httptool.HeaderContentTypeStream)
	ctx.Header(httptool.HeaderContentCache, httptool.HeaderContentCacheNo)
	ctx.Header(httptool.HeaderContentConnection, httptool.HeaderContentKeepAlive)

	frames := factory.GetChat().ChatStream(ctx.Request.Context(), req, now)
	ctx.Stream(func(w io.Writer) bool {
		frame, ok := <-frames
		if !ok {
			return false
		}
		data, err := json.Marshal(frame)
		if err != nil {
			log.Errorf("marshal stream frame: %v", err)
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		return true
	})
}
