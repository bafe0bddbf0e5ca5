package service

import (
	"context"
	"time"

	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/repository"
)

// 核心服务只依赖这些窄接口；gorm 仓储是生产实现，测试用内存桩。

// PerformanceProvider 性能数据提供方（外部协作者，§外部接口）。
// 返回的历史点带显式时间戳；缺失时间点代表"无证据"，从不按 0 处理。
type PerformanceProvider interface {
	GetCoursePerformance(ctx context.Context, studentID uint, courseCode string) (*model.CoursePerformanceData, error)
	GetEnrollments(ctx context.Context, studentID uint) ([]model.CourseEnrollment, error)
	GetEngagementMetrics(ctx context.Context, studentID uint) (*model.EngagementStat, error)
	GetCohortPerformance(ctx context.Context, courseCode string) ([]model.CoursePerformanceData, error)
	GetCognitiveProfiles(ctx context.Context, studentIDs []uint) ([]model.LearnerCognitiveProfile, error)
}

// DependencyStore 依赖图存取。
type DependencyStore interface {
	ListForCourses(ctx context.Context, courseCodes []string) ([]model.KnowledgeDependency, error)
	GetCourseDependencies(ctx context.Context, courseCode string) (*repository.CourseDependencyLinks, error)
	Upsert(ctx context.Context, dep *model.KnowledgeDependency) error
	CreateTransferOpportunity(ctx context.Context, op *model.KnowledgeTransferOpportunity) error
	ListConceptRelations(ctx context.Context) (map[string][]string, error)
	GetCourse(ctx context.Context, courseCode string) (*model.Course, error)
}

// ConsentGate 跨课程数据访问许可。返回 false 是正常过滤条件而非错误；
// 查询本身失败才作为 PrivacyViolation 上抛。
type ConsentGate interface {
	IsAccessPermitted(ctx context.Context, studentID uint, sourceCourse, targetCourse, dataType string) (bool, error)
}

// AlertStore 预警持久化。
type AlertStore interface {
	Create(ctx context.Context, alert *model.CrossCourseGapAlert) error
	FindByID(ctx context.Context, id string) (*model.CrossCourseGapAlert, error)
	Save(ctx context.Context, alert *model.CrossCourseGapAlert) error
	ListByInstructor(ctx context.Context, instructorID uint, f repository.AlertListFilter) (*repository.AlertPage, error)
	InvalidateListing(ctx context.Context, instructorID uint)
	CountByInstructorSince(ctx context.Context, instructorID uint, since time.Time) (int64, error)
	CreateFeedback(ctx context.Context, fb *model.AlertFeedback) error
	ListFeedbackSince(ctx context.Context, instructorID uint, since time.Time) ([]model.AlertFeedback, error)
}

// StudentRoster 批量扫描需要的课程名册。
type StudentRoster interface {
	ListStudentIDsByCourse(courseCode string) ([]uint, error)
}

// AlertNotifier 预警的射后不理通知通道；发送失败不回滚预警落库。
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *model.CrossCourseGapAlert) error
}

const consentDataTypePerformance = "performance"
