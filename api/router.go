package api

import "github.com/gin-gonic/gin"

func NewRouter(handler *TripHandler) *gin.Engine {
	router := gin.Default()
	handler.Register(router.Group("/api/v1"))
	return router
}
