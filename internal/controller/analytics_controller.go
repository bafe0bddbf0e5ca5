package controller

import (
	"strings"

	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/service"
	"edu_insight_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	Analytics *service.AnalyticsService
	Gaps      *service.GapAnalyzerService
}

func NewAnalyticsController(analytics *service.AnalyticsService, gaps *service.GapAnalyzerService) *AnalyticsController {
	return &AnalyticsController{Analytics: analytics, Gaps: gaps}
}

// GetCrossCourseAnalytics godoc
// @Summary 跨课程学习分析
// @Description 课程状态、依赖图、相关性、缺口分析、风险评分与行动项的完整快照
// @Tags 分析
// @Produce  json
// @Security BearerAuth
// @Param   courses query string false "逗号分隔的课程代码过滤"
// @Param   depth query string false "standard | deep"
// @Param   preventive query bool false "包含预防性缺口"
// @Success 200 {object} util.Response{data=model.CrossCourseAnalyticsResponse} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 422 {object} util.Response "上游数据不足"
// @Failure 503 {object} util.Response "洞察暂不可用"
// @Router /api/analytics/cross-course [get]
func (c *AnalyticsController) GetCrossCourseAnalytics(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	req := model.CrossCourseAnalyticsRequest{
		StudentID:         claims.UserID,
		AnalysisDepth:     ctx.Query("depth"),
		IncludePreventive: ctx.Query("preventive") == "true",
	}
	if raw := ctx.Query("courses"); raw != "" {
		req.CourseFilters = strings.Split(raw, ",")
	}

	resp, err := c.Analytics.GenerateCrossCourseAnalytics(ctx.Request.Context(), req)
	if err != nil {
		util.AnalysisError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// GetAcademicRisk godoc
// @Summary 学业风险评分
// @Description 返回综合风险评分及四个分量
// @Tags 分析
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 503 {object} util.Response "洞察暂不可用"
// @Router /api/analytics/risk [get]
func (c *AnalyticsController) GetAcademicRisk(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	resp, err := c.Analytics.GenerateCrossCourseAnalytics(ctx.Request.Context(), model.CrossCourseAnalyticsRequest{
		StudentID: claims.UserID,
	})
	if err != nil {
		util.AnalysisError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"academicRiskScore": resp.AcademicRiskScore,
		"riskComponents":    resp.RiskComponents,
		"generatedAt":       resp.GeneratedAt,
	})
}

type GapAnalysisRequest struct {
	CourseIDs         []string `json:"courseIds" binding:"required,min=1"`
	IncludePreventive bool     `json:"includePreventive"`
}

// AnalyzeGaps godoc
// @Summary 先修缺口分析
// @Description 对给定在读课程集合检测先修知识缺口
// @Tags 分析
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body GapAnalysisRequest true "课程集合"
// @Success 200 {object} util.Response{data=model.GapAnalysisResult} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 422 {object} util.Response "上游数据不足"
// @Failure 503 {object} util.Response "洞察暂不可用"
// @Router /api/analytics/gaps [post]
func (c *AnalyticsController) AnalyzeGaps(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req GapAnalysisRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Gaps.AnalyzePrerequisiteGaps(ctx.Request.Context(), claims.UserID, req.CourseIDs, req.IncludePreventive)
	if err != nil {
		util.AnalysisError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
