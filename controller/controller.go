package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/model"
)

// writeError 统一错误出口，按业务码映射 HTTP 状态
func writeError(ctx *gin.Context, err error) {
	var appErr *model.Error
	if !errors.As(err, &appErr) {
		log.Errorf("unexpected error: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case model.ErrorParams, model.ErrorEmptyId:
		status = http.StatusBadRequest
	case model.ErrorNotFound:
		status = http.StatusNotFound
	}
	ctx.JSON(status, gin.H{"code": appErr.Code, "message": appErr.Message})
}
