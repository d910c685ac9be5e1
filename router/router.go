package router

import (
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/ZeroAurora/XDU-PD25-School-Agent/middleware"
)

var once sync.Once
var instance *gin.Engine

func init() {
	once.Do(func() {
		instance = gin.New()
		instance.Use(middleware.Logger, gin.Recovery())
		addBasicRouter(instance)
		addApiRouter(instance)
	})
}

func GetInstance() *gin.Engine {
	return instance
}
