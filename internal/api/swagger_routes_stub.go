//go:build !swagger

package api

import "github.com/gin-gonic/gin"

// registerSwaggerRoutes 空实现，非 swagger 构建不挂载文档路由
func registerSwaggerRoutes(engine *gin.Engine) {}
