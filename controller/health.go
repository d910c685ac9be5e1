package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health 存活探针
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
