package controller

import (
	"edu_insight_backend/internal/service"
	"edu_insight_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ConsentController struct {
	Consent *service.ConsentService
}

func NewConsentController(consent *service.ConsentService) *ConsentController {
	return &ConsentController{Consent: consent}
}

// List godoc
// @Summary 数据共享许可列表
// @Description 当前学生登记过的全部跨课程数据共享许可
// @Tags 许可
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/consents [get]
func (c *ConsentController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	consents, err := c.Consent.ListForStudent(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"consents": consents})
}

type ConsentUpdateRequest struct {
	SourceCourse string `json:"sourceCourse" binding:"required"`
	TargetCourse string `json:"targetCourse" binding:"required"`
	DataType     string `json:"dataType" binding:"required"`
	Granted      bool   `json:"granted"`
}

// Update godoc
// @Summary 设置数据共享许可
// @Description 许可是有向的：授权 A→B 不代表授权 B→A
// @Tags 许可
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body ConsentUpdateRequest true "许可内容"
// @Success 200 {object} util.Response "已更新"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/consents [put]
func (c *ConsentController) Update(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req ConsentUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.Consent.GrantOrRevoke(ctx.Request.Context(), claims.UserID, req.SourceCourse, req.TargetCourse, req.DataType, req.Granted)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
