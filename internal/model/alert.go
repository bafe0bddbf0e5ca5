package model

import (
	"time"
)

type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

type InterventionType string

const (
	InterventionTutorReferral      InterventionType = "tutor-referral"
	InterventionReviewSession      InterventionType = "review-session"
	InterventionPracticeAssignment InterventionType = "practice-assignment"
)

type InterventionRecommendation struct {
	Type             InterventionType `json:"type"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Priority         int              `json:"priority"` // 1-5，5 最高
	EstimatedMinutes int              `json:"estimatedMinutes"`
}

// CrossCourseGapAlert 面向教师的持久预警记录。
// 缺口、影响预测与建议以 JSON 冗余存储，使预警在依赖图后续演化后仍可回溯。
type CrossCourseGapAlert struct {
	UUIDBase
	StudentID           uint                `gorm:"index:idx_alert_student_course" json:"studentId"`
	InstructorID        uint                `gorm:"index" json:"instructorId"`
	CourseCode          string              `gorm:"size:50;index:idx_alert_student_course" json:"courseCode"`
	PrerequisiteCourse  string              `gorm:"size:50" json:"prerequisiteCourse"`
	Concept             string              `gorm:"size:200" json:"concept"`
	Severity            float64             `gorm:"type:double" json:"severity"`
	Priority            RemediationPriority `gorm:"size:20;index" json:"priority"`
	Status              AlertStatus         `gorm:"size:20;default:'pending';index" json:"status"`
	GapJSON             string              `gorm:"type:text" json:"-"`
	PredictionJSON      string              `gorm:"type:text" json:"-"`
	RecommendationsJSON string              `gorm:"type:text" json:"-"`
	PredictedImpactAt   time.Time           `json:"predictedImpactAt"`
	AcknowledgedAt      *time.Time          `json:"acknowledgedAt,omitempty"`
	ResolvedAt          *time.Time          `json:"resolvedAt,omitempty"`
}

func (CrossCourseGapAlert) TableName() string {
	return "cross_course_gap_alerts"
}

// AlertView 对外返回的预警视图，JSON 字段已反序列化。
type AlertView struct {
	CrossCourseGapAlert
	Gap             *KnowledgeGap                `json:"gap,omitempty"`
	Prediction      *ImpactPrediction            `json:"prediction,omitempty"`
	Recommendations []InterventionRecommendation `json:"recommendations,omitempty"`
}

type StudentOutcome string

const (
	OutcomeImproved StudentOutcome = "improved"
	OutcomeNoChange StudentOutcome = "no_change"
	OutcomeDeclined StudentOutcome = "declined"
)

// AlertFeedback 预警有效性的追加式反馈记录，用于持续调参。
type AlertFeedback struct {
	BaseModel
	AlertID           string         `gorm:"size:36;index;not null" json:"alertId"`
	InstructorID      uint           `gorm:"index" json:"instructorId"`
	WasActedUpon      bool           `json:"wasActedUpon"`
	InterventionType  string         `gorm:"size:50" json:"interventionType,omitempty"`
	StudentOutcome    StudentOutcome `gorm:"size:20" json:"studentOutcome"`
	TimeToActionHours *float64       `json:"timeToActionHours,omitempty"`
	FeedbackRating    *int           `json:"feedbackRating,omitempty"` // 1-5
}

func (AlertFeedback) TableName() string {
	return "alert_feedbacks"
}

// AlertAnalytics 某教师在时间窗内的预警有效性汇总。
type AlertAnalytics struct {
	InstructorID        uint           `json:"instructorId"`
	TimeframeDays       int            `json:"timeframeDays"`
	TotalAlerts         int64          `json:"totalAlerts"`
	FeedbackCount       int64          `json:"feedbackCount"`
	ActionRate          float64        `json:"actionRate"` // 百分比 0-100
	AvgTimeToActionHrs  float64        `json:"avgTimeToActionHours"`
	OutcomeDistribution map[string]int `json:"outcomeDistribution"`
	AvgFeedbackRating   float64        `json:"avgFeedbackRating"`
}
