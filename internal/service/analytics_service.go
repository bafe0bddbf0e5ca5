package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/util"
	"edu_insight_backend/pkg/logger"

	"go.uber.org/zap"
)

// 参与度归一化目标：每周登录次数与单次学习时长(分钟)。
const (
	targetLoginsPerWeek    = 5.0
	targetSessionMinutes   = 45.0
	trendWindowPoints      = 10
	riskComponentGap       = "prerequisiteGap"
	riskComponentTrend     = "performanceTrend"
	riskComponentVelocity  = "learningVelocity"
	riskComponentEngagemnt = "engagement"
)

// AnalyticsService 跨课程分析编排器：课程状态、依赖子图、两两相关、
// 缺口分析、学业风险评分、行动项与正迁移机会，结果按键缓存。
type AnalyticsService struct {
	tunables
	Performance PerformanceProvider
	Deps        DependencyStore
	Consent     ConsentGate
	Gaps        *GapAnalyzerService
	Cache       AnalyticsCache
}

func NewAnalyticsService(
	performance PerformanceProvider,
	deps DependencyStore,
	consent ConsentGate,
	gaps *GapAnalyzerService,
	cache AnalyticsCache,
	cfg config.AnalyticsConfig,
) *AnalyticsService {
	s := &AnalyticsService{
		Performance: performance,
		Deps:        deps,
		Consent:     consent,
		Gaps:        gaps,
		Cache:       cache,
	}
	s.SetConfig(cfg)
	return s
}

// GenerateCrossCourseAnalytics 完整分析流水线。
// TTL 内的重复请求原样返回缓存快照，不重算也无副作用。
func (s *AnalyticsService) GenerateCrossCourseAnalytics(
	ctx context.Context,
	req model.CrossCourseAnalyticsRequest,
) (*model.CrossCourseAnalyticsResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		return cached, nil
	}

	cfg := s.Config()

	activeCourses, err := s.resolveActiveCourses(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(activeCourses) == 0 {
		return nil, util.NewAppError(util.KindInvalidCourseSequence, "no active courses match the request", nil)
	}

	perfByCourse := make(map[string]*model.CoursePerformanceData, len(activeCourses))
	resp := &model.CrossCourseAnalyticsResponse{
		StudentID:   req.StudentID,
		GeneratedAt: time.Now(),
	}

	for _, code := range activeCourses {
		perf, perr := s.Performance.GetCoursePerformance(ctx, req.StudentID, code)
		if perr != nil {
			logger.Log.Warn("course performance unavailable, status defaults to struggling",
				zap.Uint("studentId", req.StudentID),
				zap.String("course", code),
				zap.Error(perr))
			perf = &model.CoursePerformanceData{StudentID: req.StudentID, CourseCode: code}
		}
		perfByCourse[code] = perf
		resp.CourseStatuses = append(resp.CourseStatuses, model.CourseStatusSummary{
			CourseCode:         code,
			Status:             classifyCourseStatus(perf.OverallPerformance),
			OverallPerformance: perf.OverallPerformance,
			LearningVelocity:   perf.LearningVelocity,
			DaysEnrolled:       perf.DaysEnrolled,
		})
	}

	deps, err := s.dependencySubgraph(ctx, req.StudentID, activeCourses, cfg)
	if err != nil {
		return nil, err
	}
	resp.Dependencies = deps

	correlations, err := s.pairwiseCorrelations(ctx, req.StudentID, activeCourses, perfByCourse, deps, cfg)
	if err != nil {
		return nil, err
	}
	resp.Correlations = correlations

	gapResult, err := s.Gaps.AnalyzePrerequisiteGaps(ctx, req.StudentID, activeCourses, req.IncludePreventive)
	if err != nil {
		return nil, err
	}
	resp.GapAnalysis = gapResult

	engagement, err := s.Performance.GetEngagementMetrics(ctx, req.StudentID)
	if err != nil {
		engagement = &model.EngagementStat{}
	}
	resp.AcademicRiskScore, resp.RiskComponents = academicRiskScore(cfg, gapResult, perfByCourse, engagement)

	resp.ActionItems = buildActionItems(gapResult, resp.CourseStatuses, resp.AcademicRiskScore)

	opportunities, err := s.transferOpportunities(ctx, req.StudentID, deps, perfByCourse, cfg)
	if err != nil {
		return nil, err
	}
	resp.TransferOpportunities = opportunities

	if verr := validateResponse(resp, len(activeCourses)); verr != nil {
		return nil, verr
	}

	s.Cache.Set(ctx, key, resp)
	return resp, nil
}

func validateRequest(req model.CrossCourseAnalyticsRequest) error {
	if req.StudentID == 0 {
		return util.NewAppError(util.KindInvalidCourseSequence, "student id is required", nil)
	}
	switch req.AnalysisDepth {
	case "", "standard", "deep":
	default:
		return util.NewAppError(util.KindInvalidCourseSequence, "unknown analysis depth "+req.AnalysisDepth, nil)
	}
	return nil
}

func cacheKey(req model.CrossCourseAnalyticsRequest) string {
	filters := append([]string(nil), req.CourseFilters...)
	sort.Strings(filters)
	return fmt.Sprintf("%d|%s|%s|%t", req.StudentID, strings.Join(filters, ","), req.AnalysisDepth, req.IncludePreventive)
}

func (s *AnalyticsService) resolveActiveCourses(ctx context.Context, req model.CrossCourseAnalyticsRequest) ([]string, error) {
	enrollments, err := s.Performance.GetEnrollments(ctx, req.StudentID)
	if err != nil {
		return nil, util.NewAppError(util.KindInsufficientData, "enrollments unavailable", err)
	}

	filter := make(map[string]bool, len(req.CourseFilters))
	for _, f := range req.CourseFilters {
		filter[f] = true
	}

	var courses []string
	for _, e := range enrollments {
		if !e.Active {
			continue
		}
		if len(filter) > 0 && !filter[e.CourseCode] {
			continue
		}
		courses = appendUnique(courses, e.CourseCode)
	}
	sort.Strings(courses)
	return courses, nil
}

func classifyCourseStatus(overall float64) model.CourseStatus {
	switch {
	case overall >= 0.8:
		return model.CourseStatusStrong
	case overall >= 0.6:
		return model.CourseStatusAtRisk
	default:
		return model.CourseStatusStruggling
	}
}

// dependencySubgraph 学生课程集合内的依赖边，按相关性下限过滤并去重，
// 未授权的课程对静默剔除。
func (s *AnalyticsService) dependencySubgraph(
	ctx context.Context,
	studentID uint,
	courses []string,
	cfg config.AnalyticsConfig,
) ([]model.KnowledgeDependency, error) {
	all, err := s.Deps.ListForCourses(ctx, courses)
	if err != nil {
		return nil, util.NewAppError(util.KindInsufficientData, "dependency graph unavailable", err)
	}

	seen := make(map[string]bool, len(all))
	var out []model.KnowledgeDependency
	for _, dep := range all {
		if math.Abs(dep.Correlation) < cfg.CorrelationThreshold {
			continue
		}
		edgeKey := dep.PrerequisiteCourse + "|" + dep.PrerequisiteConcept + "|" + dep.DependentCourse + "|" + dep.DependentConcept
		if seen[edgeKey] {
			continue
		}
		seen[edgeKey] = true

		permitted, gerr := s.Consent.IsAccessPermitted(ctx, studentID, dep.PrerequisiteCourse, dep.DependentCourse, consentDataTypePerformance)
		if gerr != nil {
			return nil, util.NewAppError(util.KindPrivacyViolation, "consent lookup failed", gerr)
		}
		if !permitted {
			continue
		}
		out = append(out, dep)
	}
	return out, nil
}

// pairwiseCorrelations 活跃课程两两之间的时间对齐 Pearson 相关。
// 有直接依赖边相连的课程对置信度取 0.9，否则 0.7。
func (s *AnalyticsService) pairwiseCorrelations(
	ctx context.Context,
	studentID uint,
	courses []string,
	perfByCourse map[string]*model.CoursePerformanceData,
	deps []model.KnowledgeDependency,
	cfg config.AnalyticsConfig,
) ([]model.PerformanceCorrelation, error) {
	linked := make(map[string]bool, len(deps))
	for _, d := range deps {
		linked[d.PrerequisiteCourse+"|"+d.DependentCourse] = true
		linked[d.DependentCourse+"|"+d.PrerequisiteCourse] = true
	}

	var out []model.PerformanceCorrelation
	for i := 0; i < len(courses); i++ {
		for j := i + 1; j < len(courses); j++ {
			a, b := courses[i], courses[j]

			permitted, gerr := s.Consent.IsAccessPermitted(ctx, studentID, a, b, consentDataTypePerformance)
			if gerr != nil {
				return nil, util.NewAppError(util.KindPrivacyViolation, "consent lookup failed", gerr)
			}
			if !permitted {
				continue
			}

			xs := courseScoreSeries(perfByCourse[a])
			ys := courseScoreSeries(perfByCourse[b])
			n := len(xs)
			if len(ys) < n {
				n = len(ys)
			}
			if n < cfg.MinSampleSize {
				continue
			}

			r := util.Pearson(xs[:n], ys[:n])
			if math.Abs(r) < cfg.CorrelationThreshold {
				continue
			}

			confidence := 0.7
			if linked[a+"|"+b] {
				confidence = 0.9
			}
			out = append(out, model.PerformanceCorrelation{
				CourseA:     a,
				CourseB:     b,
				Correlation: r,
				Confidence:  confidence,
				Trend:       correlationTrend(r),
			})
		}
	}
	return out, nil
}

func correlationTrend(r float64) model.CorrelationTrend {
	switch {
	case r > 0.1:
		return model.TrendPositive
	case r < -0.1:
		return model.TrendNegative
	default:
		return model.TrendNeutral
	}
}

// courseScoreSeries 课程内全部测评点按时间排序后的得分序列。
func courseScoreSeries(perf *model.CoursePerformanceData) []float64 {
	if perf == nil {
		return nil
	}
	var points []model.AssessmentPoint
	for _, cp := range perf.Concepts {
		points = append(points, cp.AssessmentPoints...)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.Score
	}
	return scores
}

// academicRiskScore 四分量加权学业风险，最终裁剪到 [0,1]。
func academicRiskScore(
	cfg config.AnalyticsConfig,
	gaps *model.GapAnalysisResult,
	perfByCourse map[string]*model.CoursePerformanceData,
	engagement *model.EngagementStat,
) (float64, map[string]float64) {
	components := map[string]float64{
		riskComponentGap:       gapRisk(gaps),
		riskComponentTrend:     performanceTrendRisk(perfByCourse),
		riskComponentVelocity:  learningVelocityRisk(engagement),
		riskComponentEngagemnt: engagementRisk(engagement),
	}

	score := components[riskComponentGap]*cfg.GapRiskWeight +
		components[riskComponentTrend]*cfg.TrendRiskWeight +
		components[riskComponentVelocity]*cfg.VelocityRiskWeight +
		components[riskComponentEngagemnt]*cfg.EngagementRiskWeight

	return util.Clamp01(score), components
}

// gapRisk 平均缺口严重度，每个 critical 缺口额外 +0.1，封顶 1。
func gapRisk(gaps *model.GapAnalysisResult) float64 {
	if gaps == nil || len(gaps.Gaps) == 0 {
		return 0
	}
	var sum float64
	critical := 0
	for _, g := range gaps.Gaps {
		sum += g.Severity
		if g.Priority == model.PriorityCritical {
			critical++
		}
	}
	return math.Min(1, sum/float64(len(gaps.Gaps))+0.1*float64(critical))
}

// performanceTrendRisk 最近 10 个测评点的线性趋势：下滑越陡风险越高。
// 不足 3 个点时取中性 0.5。
func performanceTrendRisk(perfByCourse map[string]*model.CoursePerformanceData) float64 {
	var points []model.AssessmentPoint
	for _, perf := range perfByCourse {
		for _, cp := range perf.Concepts {
			points = append(points, cp.AssessmentPoints...)
		}
	}
	if len(points) < 3 {
		return 0.5
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	if len(points) > trendWindowPoints {
		points = points[len(points)-trendWindowPoints:]
	}

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.Score
	}
	return util.Clamp01(0.5 - util.LinearTrendSlope(scores))
}

// learningVelocityRisk 投入时长缺口与提交率缺口的平均。
func learningVelocityRisk(e *model.EngagementStat) float64 {
	timeDeficit := 1 - math.Min(1, e.AvgSessionMinutes/targetSessionMinutes)
	submissionDeficit := 1 - util.Clamp01(e.SubmissionRate)
	return (timeDeficit + submissionDeficit) / 2
}

// engagementRisk 四项参与度缺口的平均。
func engagementRisk(e *model.EngagementStat) float64 {
	loginDeficit := 1 - math.Min(1, e.LoginsPerWeek/targetLoginsPerWeek)
	submissionDeficit := 1 - util.Clamp01(e.SubmissionRate)
	resourceDeficit := 1 - util.Clamp01(e.ResourceUtilization)
	sessionDeficit := 1 - math.Min(1, e.AvgSessionMinutes/targetSessionMinutes)
	return (loginDeficit + submissionDeficit + resourceDeficit + sessionDeficit) / 4
}

// buildActionItems 每个缺口一条补习项；整体风险超过 0.7 时，
// 每门 struggling 课程再追加一条 60 分钟复习项。按优先级排序。
func buildActionItems(
	gaps *model.GapAnalysisResult,
	statuses []model.CourseStatusSummary,
	riskScore float64,
) []model.ActionItem {
	var items []model.ActionItem
	if gaps != nil {
		for _, g := range gaps.Gaps {
			items = append(items, model.ActionItem{
				Type:             model.ActionKnowledgeGap,
				Title:            fmt.Sprintf("Review %s before it affects %s", g.Concept, strings.Join(g.ImpactedCourses, ", ")),
				Description:      fmt.Sprintf("Mastery of %q from %s is below the safe level for dependent coursework.", g.Concept, g.PrerequisiteCourse),
				Priority:         g.Priority,
				CourseCode:       g.PrerequisiteCourse,
				Concept:          g.Concept,
				EstimatedMinutes: int(math.Round(g.EstimatedReviewHours * 60)),
			})
		}
	}

	if riskScore > 0.7 {
		for _, st := range statuses {
			if st.Status != model.CourseStatusStruggling {
				continue
			}
			items = append(items, model.ActionItem{
				Type:             model.ActionReviewNeeded,
				Title:            fmt.Sprintf("Schedule a review session for %s", st.CourseCode),
				Description:      fmt.Sprintf("Overall performance in %s is below 0.6 while academic risk is elevated.", st.CourseCode),
				Priority:         model.PriorityHigh,
				CourseCode:       st.CourseCode,
				EstimatedMinutes: 60,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.Rank() < items[j].Priority.Rank()
	})
	return items
}

// transferOpportunities 先修侧表现强于 0.8 且依赖强度超过阈值的边产生正迁移建议，
// 建议同时落库供后续请求复用。
func (s *AnalyticsService) transferOpportunities(
	ctx context.Context,
	studentID uint,
	deps []model.KnowledgeDependency,
	perfByCourse map[string]*model.CoursePerformanceData,
	cfg config.AnalyticsConfig,
) ([]model.KnowledgeTransferOpportunity, error) {
	var out []model.KnowledgeTransferOpportunity
	for _, dep := range deps {
		src := perfByCourse[dep.PrerequisiteCourse]
		dst := perfByCourse[dep.DependentCourse]
		if src == nil || dst == nil {
			continue
		}
		if src.OverallPerformance <= 0.8 || dep.Strength <= cfg.TransferStrengthThreshold {
			continue
		}

		permitted, gerr := s.Consent.IsAccessPermitted(ctx, studentID, dep.PrerequisiteCourse, dep.DependentCourse, consentDataTypePerformance)
		if gerr != nil {
			return nil, util.NewAppError(util.KindPrivacyViolation, "consent lookup failed", gerr)
		}
		if !permitted {
			continue
		}

		op := model.KnowledgeTransferOpportunity{
			StudentID:     studentID,
			SourceCourse:  dep.PrerequisiteCourse,
			SourceConcept: dep.PrerequisiteConcept,
			TargetCourse:  dep.DependentCourse,
			TargetConcept: dep.DependentConcept,
			Strength:      dep.Strength,
			Description: fmt.Sprintf("Strength in %q from %s can be leveraged for %q in %s.",
				dep.PrerequisiteConcept, dep.PrerequisiteCourse, dep.DependentConcept, dep.DependentCourse),
		}
		if cerr := s.Deps.CreateTransferOpportunity(ctx, &op); cerr != nil {
			logger.Log.Warn("persist transfer opportunity failed", zap.Error(cerr))
		}
		out = append(out, op)
	}
	return out, nil
}

// validateResponse 装配后自检，失败视为过载信号而不是把坏数据返回给调用方。
func validateResponse(resp *model.CrossCourseAnalyticsResponse, courseCount int) error {
	if resp.AcademicRiskScore < 0 || resp.AcademicRiskScore > 1 {
		return util.NewAppError(util.KindSystemOverload, "risk score out of bounds", nil)
	}
	if len(resp.CourseStatuses) != courseCount {
		return util.NewAppError(util.KindSystemOverload, "course status summary incomplete", nil)
	}
	if resp.GapAnalysis == nil {
		return util.NewAppError(util.KindSystemOverload, "gap analysis missing from assembled response", nil)
	}
	for i := 1; i < len(resp.ActionItems); i++ {
		if resp.ActionItems[i-1].Priority.Rank() > resp.ActionItems[i].Priority.Rank() {
			return util.NewAppError(util.KindSystemOverload, "action items out of priority order", nil)
		}
	}
	return nil
}
