package util

import (
	"errors"
	"fmt"
)

// ErrorKind 核心操作的错误分类，跨组件边界以带标签的结果返回。
type ErrorKind string

const (
	KindInvalidCourseSequence ErrorKind = "invalid_course_sequence" // 输入不合法/课程数不足
	KindInsufficientData      ErrorKind = "insufficient_data"       // 上游数据集无法获取
	KindCorrelationFailed     ErrorKind = "correlation_failed"      // 统计分析阶段的意外失败
	KindGapAnalysisFailed     ErrorKind = "gap_analysis_failed"     // 缺口检测阶段的意外失败
	KindSystemOverload        ErrorKind = "system_overload"         // 响应校验失败或资源超限
	KindPrivacyViolation      ErrorKind = "privacy_violation"       // 同意校验本身出错（区别于正常拒绝）
)

// AppError 携带错误分类与结构化细节。
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: cause}
}

// KindOf 提取错误分类；非 AppError 返回空串。
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrEmailRegistered  = errors.New("该邮箱已被注册")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrInvalidStatus    = errors.New("invalid alert status transition")
)
