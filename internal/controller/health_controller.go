package controller

import (
	"context"
	"time"

	"edu_insight_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb}
}

// Health godoc
// @Summary 健康检查
// @Description 返回数据库与 Redis 组件状态
// @Tags 系统
// @Produce  json
// @Success 200 {object} util.Response{data=object} "正常"
// @Failure 503 {object} util.Response "组件异常"
// @Router /api/health [get]
func (c *HealthController) Health(ctx *gin.Context) {
	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	dbStatus := "up"
	if sqlDB, err := c.DB.DB(); err != nil || sqlDB.PingContext(checkCtx) != nil {
		dbStatus = "down"
		healthy = false
	}
	components["database"] = dbStatus

	redisStatus := "up"
	if c.Redis == nil || c.Redis.Ping(checkCtx).Err() != nil {
		redisStatus = "down"
		healthy = false
	}
	components["redis"] = redisStatus

	payload := gin.H{
		"status":     "ok",
		"components": components,
		"time":       time.Now().Format(time.RFC3339),
	}
	if !healthy {
		payload["status"] = "degraded"
		util.Error(ctx, 503, "service degraded")
		return
	}
	util.Success(ctx, payload)
}
