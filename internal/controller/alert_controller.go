package controller

import (
	"errors"
	"strconv"

	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/repository"
	"edu_insight_backend/internal/service"
	"edu_insight_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AlertController struct {
	Alerts *service.AlertService
}

func NewAlertController(alerts *service.AlertService) *AlertController {
	return &AlertController{Alerts: alerts}
}

type BatchAlertsRequest struct {
	CourseIDs           []string `json:"courseIds" binding:"required,min=1"`
	AlertThreshold      float64  `json:"alertThreshold"`
	MaxAlertsPerStudent int      `json:"maxAlertsPerStudent"`
}

// ProcessBatch godoc
// @Summary 批量生成缺口预警
// @Description 对课程集合内全部在读学生执行缺口分析并生成预警
// @Tags 预警
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body BatchAlertsRequest true "课程集合与可选阈值"
// @Success 200 {object} util.Response{data=object} "生成的预警"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/instructor/alerts/batch [post]
func (c *AlertController) ProcessBatch(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req BatchAlertsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	alerts, err := c.Alerts.ProcessBatchAlerts(ctx.Request.Context(), claims.UserID, req.CourseIDs, req.AlertThreshold, req.MaxAlertsPerStudent)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"alerts": alerts, "count": len(alerts)})
}

// List godoc
// @Summary 预警列表
// @Description 当前教师的预警，支持状态与优先级过滤和分页
// @Tags 预警
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码，默认 1"
// @Param   limit query int false "每页数量，默认 20"
// @Param   status query string false "pending | acknowledged | resolved"
// @Param   priority query string false "critical | high | medium | low"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/instructor/alerts [get]
func (c *AlertController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	pageResult, err := c.Alerts.ListAlerts(ctx.Request.Context(), claims.UserID, repository.AlertListFilter{
		Status:   ctx.Query("status"),
		Priority: ctx.Query("priority"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, pageResult)
}

// Get godoc
// @Summary 预警详情
// @Tags 预警
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "预警 ID"
// @Success 200 {object} util.Response{data=model.AlertView} "成功"
// @Failure 404 {object} util.Response "预警不存在"
// @Router /api/instructor/alerts/{id} [get]
func (c *AlertController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.Alerts.GetAlert(ctx.Request.Context(), ctx.Param("id"), claims.UserID)
	if err != nil {
		c.alertError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Acknowledge godoc
// @Summary 确认预警
// @Description 幂等：重复确认返回当前状态
// @Tags 预警
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "预警 ID"
// @Success 200 {object} util.Response{data=model.CrossCourseGapAlert} "成功"
// @Failure 404 {object} util.Response "预警不存在"
// @Router /api/instructor/alerts/{id}/acknowledge [post]
func (c *AlertController) Acknowledge(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	alert, err := c.Alerts.AcknowledgeAlert(ctx.Request.Context(), ctx.Param("id"), claims.UserID)
	if err != nil {
		c.alertError(ctx, err)
		return
	}
	util.Success(ctx, alert)
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending acknowledged resolved"`
}

// UpdateStatus godoc
// @Summary 更新预警状态
// @Tags 预警
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "预警 ID"
// @Param   body body UpdateStatusRequest true "目标状态"
// @Success 200 {object} util.Response{data=model.CrossCourseGapAlert} "成功"
// @Failure 400 {object} util.Response "状态非法"
// @Failure 404 {object} util.Response "预警不存在"
// @Router /api/instructor/alerts/{id}/status [patch]
func (c *AlertController) UpdateStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	alert, err := c.Alerts.UpdateAlertStatus(ctx.Request.Context(), ctx.Param("id"), claims.UserID, model.AlertStatus(req.Status))
	if err != nil {
		c.alertError(ctx, err)
		return
	}
	util.Success(ctx, alert)
}

type AlertFeedbackRequest struct {
	WasActedUpon      bool     `json:"wasActedUpon"`
	InterventionType  string   `json:"interventionType"`
	StudentOutcome    string   `json:"studentOutcome" binding:"omitempty,oneof=improved no_change declined"`
	TimeToActionHours *float64 `json:"timeToActionHours"`
	FeedbackRating    *int     `json:"feedbackRating" binding:"omitempty,min=1,max=5"`
}

// RecordFeedback godoc
// @Summary 记录预警有效性反馈
// @Tags 预警
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "预警 ID"
// @Param   body body AlertFeedbackRequest true "反馈内容"
// @Success 201 {object} util.Response "已记录"
// @Failure 404 {object} util.Response "预警不存在"
// @Router /api/instructor/alerts/{id}/feedback [post]
func (c *AlertController) RecordFeedback(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req AlertFeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.Alerts.RecordAlertEffectiveness(
		ctx.Request.Context(),
		ctx.Param("id"),
		claims.UserID,
		req.WasActedUpon,
		req.InterventionType,
		model.StudentOutcome(req.StudentOutcome),
		req.TimeToActionHours,
		req.FeedbackRating,
	)
	if err != nil {
		c.alertError(ctx, err)
		return
	}
	util.Created(ctx, nil)
}

// Analytics godoc
// @Summary 预警有效性汇总
// @Description 时间窗内的行动率、平均响应时长、结果分布与平均评分
// @Tags 预警
// @Produce  json
// @Security BearerAuth
// @Param   days query int false "时间窗天数，默认 30"
// @Success 200 {object} util.Response{data=model.AlertAnalytics} "成功"
// @Router /api/instructor/alerts/analytics [get]
func (c *AlertController) Analytics(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	days, _ := strconv.Atoi(ctx.DefaultQuery("days", "30"))
	analytics, err := c.Alerts.GetAlertAnalytics(ctx.Request.Context(), claims.UserID, days)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, analytics)
}

func (c *AlertController) alertError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAlertNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrInvalidStatus):
		util.BadRequest(ctx, "invalid alert status")
	default:
		util.LogInternalError(ctx, err)
	}
}
