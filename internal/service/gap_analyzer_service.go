package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/util"
	"edu_insight_backend/pkg/logger"

	"go.uber.org/zap"
)

// 后继课程入读超过该天数后，先修弱点被视为已不构成威胁。
const dependentCourseWindowDays = 30

// 最近一次测评超过该天数视为数据陈旧，预测置信度按课程逐个打折。
const stalenessDays = 14

// GapAnalyzerService 检测威胁到在读后继课程的先修弱点，并预测影响。
type GapAnalyzerService struct {
	tunables
	Performance PerformanceProvider
	Deps        DependencyStore
	Consent     ConsentGate
}

func NewGapAnalyzerService(
	performance PerformanceProvider,
	deps DependencyStore,
	consent ConsentGate,
	cfg config.AnalyticsConfig,
) *GapAnalyzerService {
	s := &GapAnalyzerService{
		Performance: performance,
		Deps:        deps,
		Consent:     consent,
	}
	s.SetConfig(cfg)
	return s
}

// AnalyzePrerequisiteGaps 单个学生在给定在读课程集合上的缺口分析。
func (s *GapAnalyzerService) AnalyzePrerequisiteGaps(
	ctx context.Context,
	studentID uint,
	activeCourseIDs []string,
	includePreventive bool,
) (result *model.GapAnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = util.NewAppError(util.KindGapAnalysisFailed, "prerequisite gap analysis panicked", fmt.Errorf("%v", r))
		}
	}()

	cfg := s.Config()

	deps, err := s.Deps.ListForCourses(ctx, activeCourseIDs)
	if err != nil {
		return nil, util.NewAppError(util.KindInsufficientData, "dependency graph unavailable", err)
	}

	perfByCourse := make(map[string]*model.CoursePerformanceData, len(activeCourseIDs))
	for _, code := range activeCourseIDs {
		perf, perr := s.Performance.GetCoursePerformance(ctx, studentID, code)
		if perr != nil {
			// 单门课程的数据问题不中断整体分析
			logger.Log.Warn("course performance unavailable",
				zap.Uint("studentId", studentID),
				zap.String("course", code),
				zap.Error(perr))
			continue
		}
		perfByCourse[code] = perf
	}

	gapByKey := make(map[string]*model.KnowledgeGap)

	for _, dep := range deps {
		permitted, gerr := s.Consent.IsAccessPermitted(ctx, studentID, dep.PrerequisiteCourse, dep.DependentCourse, consentDataTypePerformance)
		if gerr != nil {
			return nil, util.NewAppError(util.KindPrivacyViolation, "consent lookup failed", gerr)
		}
		if !permitted {
			continue
		}

		prereqPerf := perfByCourse[dep.PrerequisiteCourse]
		depPerf := perfByCourse[dep.DependentCourse]
		if prereqPerf == nil || depPerf == nil {
			continue
		}

		mastery, found := conceptMastery(prereqPerf, dep.PrerequisiteConcept)
		if !found {
			continue // 无证据不等于零掌握
		}
		if mastery >= cfg.RiskMasteryThreshold {
			continue
		}
		if depPerf.DaysEnrolled > dependentCourseWindowDays {
			continue // 后继课程已过起步期
		}

		severity := gapSeverity(mastery, dep.Strength, depPerf)

		key := dep.PrerequisiteCourse + "|" + dep.PrerequisiteConcept
		if existing, ok := gapByKey[key]; ok {
			// 同键重复缺口合并受影响课程，保留更高严重度
			existing.ImpactedCourses = appendUnique(existing.ImpactedCourses, dep.DependentCourse)
			if severity > existing.Severity {
				existing.Severity = severity
				existing.Priority = remediationPriority(severity, dep.Strength)
				existing.DependencyStrength = dep.Strength
			}
			continue
		}

		gap := &model.KnowledgeGap{
			PrerequisiteCourse:   dep.PrerequisiteCourse,
			Concept:              dep.PrerequisiteConcept,
			Severity:             severity,
			ImpactedCourses:      []string{dep.DependentCourse},
			Priority:             remediationPriority(severity, dep.Strength),
			DependencyStrength:   dep.Strength,
			EstimatedReviewHours: estimatedReviewHours(severity, prereqPerf, dep.PrerequisiteConcept),
			PrerequisiteTopics:   s.prerequisiteTopics(ctx, dep.PrerequisiteCourse, dep.PrerequisiteConcept),
		}
		gapByKey[key] = gap
	}

	if includePreventive {
		s.addPreventiveGaps(ctx, cfg, deps, perfByCourse, gapByKey)
	}

	// 误报过滤 + 结构校验
	var gaps []model.KnowledgeGap
	for _, gap := range gapByKey {
		if gap.Severity < cfg.SeverityFloor {
			continue
		}
		if len(gap.ImpactedCourses) == 0 || gap.Concept == "" || gap.Severity <= 0 || gap.Severity > 1 {
			continue
		}
		gaps = append(gaps, *gap)
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Severity != gaps[j].Severity {
			return gaps[i].Severity > gaps[j].Severity
		}
		return gaps[i].Concept < gaps[j].Concept
	})

	result = &model.GapAnalysisResult{Gaps: gaps}

	depByEdge := indexDependencies(deps)
	for _, gap := range gaps {
		prediction := s.predictImpact(gap, depByEdge, perfByCourse)
		result.ImpactPredictions = append(result.ImpactPredictions, prediction)
		result.RiskFactors = append(result.RiskFactors, model.RiskFactor{
			Category:        "prerequisite_gap",
			Description:     fmt.Sprintf("Weak mastery of %q in %s threatens %v", gap.Concept, gap.PrerequisiteCourse, gap.ImpactedCourses),
			Impact:          gap.Severity,
			Confidence:      prediction.Confidence,
			AffectedCourses: gap.ImpactedCourses,
			Timeframe:       timeframeBucket(prediction.DaysUntilImpact),
		})
	}

	result.ConfidenceScore = overallConfidence(result)
	return result, nil
}

// gapSeverity 严重度公式：掌握缺口×依赖强度 + 后继课程整体表现缺口×0.3 + 困难加成，
// 裁剪到 [0.1, 1]。
func gapSeverity(mastery, strength float64, depPerf *model.CoursePerformanceData) float64 {
	struggleBonus := 0.0
	for _, si := range depPerf.StruggleIndicators {
		if !si.Resolved {
			struggleBonus = 0.2
			break
		}
	}

	severity := util.Clamp01((1-mastery)*strength + (1-depPerf.OverallPerformance)*0.3 + struggleBonus)
	if severity < 0.1 {
		severity = 0.1
	}
	return severity
}

func remediationPriority(severity, strength float64) model.RemediationPriority {
	switch {
	case severity > 0.8 && strength > 0.8:
		return model.PriorityCritical
	case severity > 0.6 || strength > 0.7:
		return model.PriorityHigh
	case severity > 0.4:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// estimatedReviewHours 补救时长估计：严重度主导，历史复习次数加少量权重。
func estimatedReviewHours(severity float64, perf *model.CoursePerformanceData, concept string) float64 {
	hours := 1 + severity*4
	for _, cp := range perf.Concepts {
		if cp.Concept == concept {
			hours += 0.5 * float64(cp.ReviewCount)
			break
		}
	}
	if hours > 8 {
		hours = 8
	}
	return math.Round(hours*2) / 2
}

// prerequisiteTopics 先修的先修，用于更深的补救链。
func (s *GapAnalyzerService) prerequisiteTopics(ctx context.Context, courseCode, concept string) []string {
	links, err := s.Deps.GetCourseDependencies(ctx, courseCode)
	if err != nil {
		return nil
	}
	var topics []string
	for _, d := range links.Prerequisites {
		if d.DependentConcept == concept {
			topics = appendUnique(topics, d.PrerequisiteConcept)
		}
	}
	return topics
}

// addPreventiveGaps 学习速度与整体表现都偏低的课程里，
// 掌握不足且有已知依赖边的概念被标记为未来缺口。
func (s *GapAnalyzerService) addPreventiveGaps(
	ctx context.Context,
	cfg config.AnalyticsConfig,
	deps []model.KnowledgeDependency,
	perfByCourse map[string]*model.CoursePerformanceData,
	gapByKey map[string]*model.KnowledgeGap,
) {
	for code, perf := range perfByCourse {
		if perf.LearningVelocity >= 0.5 || perf.OverallPerformance >= 0.7 {
			continue
		}
		for _, cp := range perf.Concepts {
			if cp.MasteryLevel >= 0.6 {
				continue
			}

			var edge *model.KnowledgeDependency
			for i := range deps {
				if deps[i].PrerequisiteCourse == code && deps[i].PrerequisiteConcept == cp.Concept {
					edge = &deps[i]
					break
				}
			}
			if edge == nil {
				continue
			}

			permitted, err := s.Consent.IsAccessPermitted(ctx, perf.StudentID, edge.PrerequisiteCourse, edge.DependentCourse, consentDataTypePerformance)
			if err != nil || !permitted {
				continue
			}

			key := code + "|" + cp.Concept
			if _, exists := gapByKey[key]; exists {
				continue
			}

			severity := util.Clamp01(0.3 + (0.6 - cp.MasteryLevel))
			gapByKey[key] = &model.KnowledgeGap{
				PrerequisiteCourse:   code,
				Concept:              cp.Concept,
				Severity:             severity,
				ImpactedCourses:      []string{edge.DependentCourse},
				Priority:             model.PriorityMedium,
				DependencyStrength:   edge.Strength,
				EstimatedReviewHours: estimatedReviewHours(severity, perf, cp.Concept),
				Preventive:           true,
			}
		}
	}
}

func (s *GapAnalyzerService) predictImpact(
	gap model.KnowledgeGap,
	depByEdge map[string]model.KnowledgeDependency,
	perfByCourse map[string]*model.CoursePerformanceData,
) model.ImpactPrediction {
	// 时间线：严重度与依赖强度越高，影响来得越快
	days := int(math.Round(14 + (1-gap.Severity)*7 + (1-gap.DependencyStrength)*7))
	if days < 1 {
		days = 1
	}

	confidence := 0.7
	if len(gap.ImpactedCourses) > 0 {
		edgeKey := gap.PrerequisiteCourse + "|" + gap.Concept + "|" + gap.ImpactedCourses[0]
		if dep, ok := depByEdge[edgeKey]; ok {
			confidence += 0.2 * dep.ValidationScore
		}
	}

	// 数据陈旧按课程逐个打折
	for _, code := range append([]string{gap.PrerequisiteCourse}, gap.ImpactedCourses...) {
		if perf, ok := perfByCourse[code]; ok && isStale(perf) {
			confidence *= 0.95
		}
	}
	if confidence < 0.5 {
		confidence = 0.5
	}
	if confidence > 1 {
		confidence = 1
	}

	targetCourse := ""
	if len(gap.ImpactedCourses) > 0 {
		targetCourse = gap.ImpactedCourses[0]
	}

	return model.ImpactPrediction{
		CourseCode:               targetCourse,
		Concept:                  gap.Concept,
		DaysUntilImpact:          days,
		Severity:                 gap.Severity,
		PredictedPerformanceDrop: math.Min(0.4, gap.Severity*0.5),
		Confidence:               confidence,
		AffectedAssignments:      upcomingAssignmentKinds(perfByCourse[targetCourse]),
	}
}

// upcomingAssignmentKinds 从测评历史归纳可能受影响的作业类型。
func upcomingAssignmentKinds(perf *model.CoursePerformanceData) []string {
	if perf == nil {
		return nil
	}
	var kinds []string
	for _, cp := range perf.Concepts {
		for _, pt := range cp.AssessmentPoints {
			kinds = appendUnique(kinds, pt.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

func isStale(perf *model.CoursePerformanceData) bool {
	var latest time.Time
	for _, cp := range perf.Concepts {
		if cp.LastAssessedAt != nil && cp.LastAssessedAt.After(latest) {
			latest = *cp.LastAssessedAt
		}
	}
	if latest.IsZero() {
		return true
	}
	return time.Since(latest) > stalenessDays*24*time.Hour
}

func timeframeBucket(days int) model.RiskTimeframe {
	switch {
	case days <= 3:
		return model.TimeframeImmediate
	case days <= 14:
		return model.TimeframeShortTerm
	case days <= 30:
		return model.TimeframeMediumTerm
	default:
		return model.TimeframeLongTerm
	}
}

func overallConfidence(result *model.GapAnalysisResult) float64 {
	if len(result.Gaps) == 0 {
		return 1.0
	}

	var confSum float64
	for _, rf := range result.RiskFactors {
		confSum += rf.Confidence
	}
	avgConf := confSum / float64(len(result.RiskFactors))

	severe := 0
	for _, g := range result.Gaps {
		if g.Severity > 0.5 {
			severe++
		}
	}
	return avgConf * float64(severe) / float64(len(result.Gaps))
}

func conceptMastery(perf *model.CoursePerformanceData, concept string) (float64, bool) {
	for _, cp := range perf.Concepts {
		if cp.Concept == concept {
			return cp.MasteryLevel, true
		}
	}
	return 0, false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func indexDependencies(deps []model.KnowledgeDependency) map[string]model.KnowledgeDependency {
	out := make(map[string]model.KnowledgeDependency, len(deps))
	for _, d := range deps {
		out[d.PrerequisiteCourse+"|"+d.PrerequisiteConcept+"|"+d.DependentCourse] = d
	}
	return out
}
