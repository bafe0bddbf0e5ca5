package model

import (
	"time"
)

// ConceptMastery 学生对某课程某概念的当前掌握摘要（0.0 - 1.0）。
// 历史证据在 assessment_records 中不可变累积，本表只保存可变的"当前值"。
type ConceptMastery struct {
	BaseModel
	StudentID         uint       `gorm:"index:idx_mastery_key,unique;not null" json:"studentId"`
	CourseCode        string     `gorm:"size:50;index:idx_mastery_key,unique;not null" json:"courseCode"`
	Concept           string     `gorm:"size:200;index:idx_mastery_key,unique;not null" json:"concept"`
	MasteryLevel      float64    `gorm:"type:double;default:0" json:"masteryLevel"` // 掌握度 0.0 - 1.0
	Confidence        float64    `gorm:"type:double;default:0" json:"confidence"`   // 估计置信度 0.0 - 1.0
	TimeToMasteryDays *float64   `json:"timeToMasteryDays,omitempty"`
	Struggling        bool       `gorm:"default:false" json:"struggling"`
	ReviewCount       int        `gorm:"default:0" json:"reviewCount"`
	LastAssessedAt    *time.Time `json:"lastAssessedAt,omitempty"`
}

func (ConceptMastery) TableName() string {
	return "concept_masteries"
}

// AssessmentRecord 一次测评的不可变历史点。
type AssessmentRecord struct {
	BaseModel
	StudentID        uint      `gorm:"index:idx_assess_student_course" json:"studentId"`
	CourseCode       string    `gorm:"size:50;index:idx_assess_student_course" json:"courseCode"`
	Concept          string    `gorm:"size:200;index" json:"concept"`
	RecordedAt       time.Time `gorm:"index" json:"recordedAt"`
	Score            float64   `gorm:"type:double" json:"score"` // 0-1
	Kind             string    `gorm:"size:50" json:"kind"`      // quiz/exam/homework/practice
	TimeSpentMinutes int       `gorm:"default:0" json:"timeSpentMinutes"`
}

func (AssessmentRecord) TableName() string {
	return "assessment_records"
}

// StruggleIndicator 由外部困难检测子系统写入，这里只读透传，从不重算。
type StruggleIndicator struct {
	BaseModel
	StudentID        uint      `gorm:"index:idx_struggle_student_course" json:"studentId"`
	CourseCode       string    `gorm:"size:50;index:idx_struggle_student_course" json:"courseCode"`
	Type             string    `gorm:"size:100" json:"type"`
	Severity         float64   `gorm:"type:double" json:"severity"` // 0-1
	AffectedConcepts string    `gorm:"type:text" json:"affectedConcepts"` // JSON 数组
	DetectedAt       time.Time `json:"detectedAt"`
	Resolved         bool      `gorm:"default:false" json:"resolved"`
}

func (StruggleIndicator) TableName() string {
	return "struggle_indicators"
}

// LearnerCognitiveProfile 学习者认知画像的窄接口：
// 仅作为依赖推断的可选增强信号消费，画像的生成不在本系统内。
type LearnerCognitiveProfile struct {
	BaseModel
	StudentID         uint    `gorm:"uniqueIndex;not null" json:"studentId"`
	LearningStyle     string  `gorm:"size:50" json:"learningStyle"` // visual/auditory/kinesthetic/reading
	AttentionSpan     float64 `gorm:"type:double;default:0" json:"attentionSpan"`
	ProcessingSpeed   float64 `gorm:"type:double;default:0" json:"processingSpeed"`
	PreferredModality string  `gorm:"size:50" json:"preferredModality"`
}

func (LearnerCognitiveProfile) TableName() string {
	return "learner_cognitive_profiles"
}
