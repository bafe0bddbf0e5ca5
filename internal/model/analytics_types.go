package model

import (
	"time"
)

// ---- 性能数据提供方的返回形态（请求期临时对象，不落库） ----

// AssessmentPoint 时间对齐的测评点。缺失的时间点表示"无证据"，从不按 0 分处理。
type AssessmentPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	Score            float64   `json:"score"` // 0-1
	Kind             string    `json:"kind"`
	TimeSpentMinutes int       `json:"timeSpentMinutes"`
}

// ConceptPerformance 单个概念的掌握情况与测评历史。
type ConceptPerformance struct {
	Concept           string            `json:"concept"`
	MasteryLevel      float64           `json:"masteryLevel"` // 0-1
	Confidence        float64           `json:"confidence"`   // 0-1
	TimeToMasteryDays *float64          `json:"timeToMasteryDays,omitempty"`
	Struggling        bool              `json:"struggling"`
	ReviewCount       int               `json:"reviewCount"`
	LastAssessedAt    *time.Time        `json:"lastAssessedAt,omitempty"`
	AssessmentPoints  []AssessmentPoint `json:"assessmentPoints"`
}

// CoursePerformanceData 某学生在某课程的聚合表现，按分析请求重算，不持久化。
type CoursePerformanceData struct {
	StudentID          uint                 `json:"studentId"`
	CourseCode         string               `json:"courseCode"`
	OverallPerformance float64              `json:"overallPerformance"` // 0-1
	LearningVelocity   float64              `json:"learningVelocity"`   // 概念/周，归一化 0-1
	DaysEnrolled       int                  `json:"daysEnrolled"`
	Concepts           []ConceptPerformance `json:"concepts"`
	StruggleIndicators []StruggleIndicator  `json:"struggleIndicators"`
}

// ---- 缺口分析输出 ----

type RemediationPriority string

const (
	PriorityCritical RemediationPriority = "critical"
	PriorityHigh     RemediationPriority = "high"
	PriorityMedium   RemediationPriority = "medium"
	PriorityLow      RemediationPriority = "low"
)

// Rank 排序序号，critical 最靠前。
func (p RemediationPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// KnowledgeGap 检出的先修弱点。仅在升级为预警时才被持久化。
type KnowledgeGap struct {
	PrerequisiteCourse   string              `json:"prerequisiteCourse"`
	Concept              string              `json:"concept"`
	Severity             float64             `json:"severity"` // (0,1]，下限 0.1
	ImpactedCourses      []string            `json:"impactedCourses"`
	Priority             RemediationPriority `json:"priority"`
	DependencyStrength   float64             `json:"dependencyStrength"`
	EstimatedReviewHours float64             `json:"estimatedReviewHours"`
	PrerequisiteTopics   []string            `json:"prerequisiteTopics,omitempty"` // 先修的先修，用于更深的补救链
	Preventive           bool                `json:"preventive"`
}

type RiskTimeframe string

const (
	TimeframeImmediate  RiskTimeframe = "immediate"   // <=3 天
	TimeframeShortTerm  RiskTimeframe = "short_term"  // <=14 天
	TimeframeMediumTerm RiskTimeframe = "medium_term" // <=30 天
	TimeframeLongTerm   RiskTimeframe = "long_term"
)

type RiskFactor struct {
	Category        string        `json:"category"`
	Description     string        `json:"description"`
	Impact          float64       `json:"impact"`     // 0-1
	Confidence      float64       `json:"confidence"` // 0-1
	AffectedCourses []string      `json:"affectedCourses"`
	Timeframe       RiskTimeframe `json:"timeframe"`
}

type ImpactPrediction struct {
	CourseCode               string   `json:"courseCode"`
	Concept                  string   `json:"concept"`
	DaysUntilImpact          int      `json:"daysUntilImpact"`
	Severity                 float64  `json:"severity"`
	PredictedPerformanceDrop float64  `json:"predictedPerformanceDrop"`
	Confidence               float64  `json:"confidence"`
	AffectedAssignments      []string `json:"affectedAssignments"`
}

type GapAnalysisResult struct {
	Gaps              []KnowledgeGap     `json:"gaps"`
	RiskFactors       []RiskFactor       `json:"riskFactors"`
	ImpactPredictions []ImpactPrediction `json:"impactPredictions"`
	ConfidenceScore   float64            `json:"confidenceScore"`
}

// ---- 跨课程分析快照 ----

type CourseStatus string

const (
	CourseStatusStrong     CourseStatus = "strong"     // >=0.8
	CourseStatusAtRisk     CourseStatus = "at-risk"    // >=0.6
	CourseStatusStruggling CourseStatus = "struggling" // <0.6
)

type CourseStatusSummary struct {
	CourseCode         string       `json:"courseCode"`
	Status             CourseStatus `json:"status"`
	OverallPerformance float64      `json:"overallPerformance"`
	LearningVelocity   float64      `json:"learningVelocity"`
	DaysEnrolled       int          `json:"daysEnrolled"`
}

type CorrelationTrend string

const (
	TrendPositive CorrelationTrend = "positive"
	TrendNegative CorrelationTrend = "negative"
	TrendNeutral  CorrelationTrend = "neutral"
)

type PerformanceCorrelation struct {
	CourseA     string           `json:"courseA"`
	CourseB     string           `json:"courseB"`
	Correlation float64          `json:"correlation"`
	Confidence  float64          `json:"confidence"`
	Trend       CorrelationTrend `json:"trend"`
}

type ActionItemType string

const (
	ActionKnowledgeGap ActionItemType = "knowledge-gap"
	ActionReviewNeeded ActionItemType = "review-needed"
)

type ActionItem struct {
	Type             ActionItemType      `json:"type"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Priority         RemediationPriority `json:"priority"`
	CourseCode       string              `json:"courseCode"`
	Concept          string              `json:"concept,omitempty"`
	EstimatedMinutes int                 `json:"estimatedMinutes"`
}

type CrossCourseAnalyticsRequest struct {
	StudentID         uint     `json:"studentId"`
	CourseFilters     []string `json:"courseFilters,omitempty"`
	AnalysisDepth     string   `json:"analysisDepth"` // standard | deep
	IncludePreventive bool     `json:"includePreventive"`
}

type CrossCourseAnalyticsResponse struct {
	StudentID             uint                           `json:"studentId"`
	GeneratedAt           time.Time                      `json:"generatedAt"`
	CourseStatuses        []CourseStatusSummary          `json:"courseStatuses"`
	Dependencies          []KnowledgeDependency          `json:"dependencies"`
	Correlations          []PerformanceCorrelation       `json:"correlations"`
	GapAnalysis           *GapAnalysisResult             `json:"gapAnalysis"`
	AcademicRiskScore     float64                        `json:"academicRiskScore"`
	RiskComponents        map[string]float64             `json:"riskComponents"`
	ActionItems           []ActionItem                   `json:"actionItems"`
	TransferOpportunities []KnowledgeTransferOpportunity `json:"transferOpportunities"`
}
