package controller

import (
	"edu_insight_backend/internal/service"
	"edu_insight_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DependencyController struct {
	Mapper *service.DependencyMapperService
	Deps   service.DependencyStore
}

func NewDependencyController(mapper *service.DependencyMapperService, deps service.DependencyStore) *DependencyController {
	return &DependencyController{Mapper: mapper, Deps: deps}
}

// GetCourseDependencies godoc
// @Summary 课程依赖关系
// @Description 某课程作为先修与作为后继的全部依赖边
// @Tags 依赖图
// @Produce  json
// @Security BearerAuth
// @Param   courseId path string true "课程代码"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 422 {object} util.Response "依赖图不可用"
// @Router /api/instructor/courses/{courseId}/dependencies [get]
func (c *DependencyController) GetCourseDependencies(ctx *gin.Context) {
	courseCode := ctx.Param("courseId")
	if courseCode == "" {
		util.BadRequest(ctx, "courseId is required")
		return
	}

	links, err := c.Deps.GetCourseDependencies(ctx.Request.Context(), courseCode)
	if err != nil {
		util.Error(ctx, 422, "dependency graph unavailable")
		return
	}
	util.Success(ctx, links)
}

type AnalyzeDependenciesRequest struct {
	CourseIDs []string `json:"courseIds" binding:"required,min=2"`
}

// AnalyzeDependencies godoc
// @Summary 触发依赖发现
// @Description 基于课程群体表现数据发现并持久化概念级依赖边
// @Tags 依赖图
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body AnalyzeDependenciesRequest true "课程集合，至少两门"
// @Success 200 {object} util.Response{data=object} "发现的依赖边"
// @Failure 400 {object} util.Response "课程不足两门"
// @Failure 422 {object} util.Response "群体数据不足"
// @Failure 503 {object} util.Response "分析失败"
// @Router /api/instructor/dependencies/analyze [post]
func (c *DependencyController) AnalyzeDependencies(ctx *gin.Context) {
	var req AnalyzeDependenciesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	deps, err := c.Mapper.DiscoverAndPersist(ctx.Request.Context(), req.CourseIDs)
	if err != nil {
		util.AnalysisError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"dependencies": deps, "count": len(deps)})
}
