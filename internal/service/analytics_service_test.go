package service

import (
	"context"
	"testing"
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scorePoints(start, step float64, n int, from time.Time) []model.AssessmentPoint {
	points := make([]model.AssessmentPoint, n)
	for i := 0; i < n; i++ {
		points[i] = model.AssessmentPoint{
			Timestamp: from.AddDate(0, 0, i*3),
			Score:     start + step*float64(i),
			Kind:      "quiz",
		}
	}
	return points
}

// 两门已注册课程，MATH101 表现强劲且与 PHYS101 有一条强依赖边，
// 测评序列线性相关。
func analyticsFixture() (*fakePerformance, *fakeDependencyStore) {
	perf := newFakePerformance()
	perf.enroll(7, "MATH101", 90)
	perf.enroll(7, "PHYS101", 10)

	seriesStart := time.Now().AddDate(0, 0, -50)
	perf.add(model.CoursePerformanceData{
		StudentID:          7,
		CourseCode:         "MATH101",
		OverallPerformance: 0.85,
		LearningVelocity:   0.8,
		DaysEnrolled:       90,
		Concepts: []model.ConceptPerformance{{
			Concept:          "algebra",
			MasteryLevel:     0.85,
			LastAssessedAt:   recentTime(),
			AssessmentPoints: scorePoints(0.6, 0.03, 12, seriesStart),
		}},
	})
	perf.add(model.CoursePerformanceData{
		StudentID:          7,
		CourseCode:         "PHYS101",
		OverallPerformance: 0.5,
		LearningVelocity:   0.6,
		DaysEnrolled:       10,
		Concepts: []model.ConceptPerformance{{
			Concept:          "kinematics",
			MasteryLevel:     0.5,
			LastAssessedAt:   recentTime(),
			AssessmentPoints: scorePoints(0.5, 0.03, 12, seriesStart.Add(time.Hour)),
		}},
	})

	deps := newFakeDependencyStore()
	deps.deps = []model.KnowledgeDependency{{
		PrerequisiteCourse:  "MATH101",
		PrerequisiteConcept: "algebra",
		DependentCourse:     "PHYS101",
		DependentConcept:    "kinematics",
		Strength:            0.8,
		Correlation:         0.8,
		ValidationScore:     0.9,
		SampleSize:          40,
	}}
	return perf, deps
}

func newAnalytics(perf *fakePerformance, deps *fakeDependencyStore, consent *fakeConsent) *AnalyticsService {
	cfg := config.DefaultAnalyticsConfig()
	gaps := NewGapAnalyzerService(perf, deps, consent, cfg)
	cache := NewMemoryAnalyticsCache(time.Hour, 100)
	return NewAnalyticsService(perf, deps, consent, gaps, cache, cfg)
}

func TestAnalyticsRejectsInvalidRequests(t *testing.T) {
	perf, deps := analyticsFixture()
	svc := newAnalytics(perf, deps, &fakeConsent{})
	ctx := context.Background()

	_, err := svc.GenerateCrossCourseAnalytics(ctx, model.CrossCourseAnalyticsRequest{StudentID: 0})
	assert.Equal(t, util.KindInvalidCourseSequence, util.KindOf(err))

	_, err = svc.GenerateCrossCourseAnalytics(ctx, model.CrossCourseAnalyticsRequest{StudentID: 7, AnalysisDepth: "exhaustive"})
	assert.Equal(t, util.KindInvalidCourseSequence, util.KindOf(err))

	// 没有任何在读课程命中过滤器
	_, err = svc.GenerateCrossCourseAnalytics(ctx, model.CrossCourseAnalyticsRequest{
		StudentID:     7,
		CourseFilters: []string{"BIO300"},
	})
	assert.Equal(t, util.KindInvalidCourseSequence, util.KindOf(err))
}

func TestAnalyticsAssemblesFullSnapshot(t *testing.T) {
	perf, deps := analyticsFixture()
	svc := newAnalytics(perf, deps, &fakeConsent{})

	resp, err := svc.GenerateCrossCourseAnalytics(context.Background(), model.CrossCourseAnalyticsRequest{StudentID: 7})
	require.NoError(t, err)

	require.Len(t, resp.CourseStatuses, 2)
	assert.Equal(t, "MATH101", resp.CourseStatuses[0].CourseCode)
	assert.Equal(t, model.CourseStatusStrong, resp.CourseStatuses[0].Status)
	assert.Equal(t, model.CourseStatusStruggling, resp.CourseStatuses[1].Status)

	require.Len(t, resp.Dependencies, 1)

	require.Len(t, resp.Correlations, 1)
	corr := resp.Correlations[0]
	assert.InDelta(t, 1.0, corr.Correlation, 1e-9)
	assert.Equal(t, 0.9, corr.Confidence, "有依赖边相连的课程对")
	assert.Equal(t, model.TrendPositive, corr.Trend)

	require.NotNil(t, resp.GapAnalysis)
	assert.Empty(t, resp.GapAnalysis.Gaps, "先修概念掌握良好")

	assert.GreaterOrEqual(t, resp.AcademicRiskScore, 0.0)
	assert.LessOrEqual(t, resp.AcademicRiskScore, 1.0)
	assert.Len(t, resp.RiskComponents, 4)
	assert.Contains(t, resp.RiskComponents, "prerequisiteGap")
	assert.Contains(t, resp.RiskComponents, "performanceTrend")
	assert.Contains(t, resp.RiskComponents, "learningVelocity")
	assert.Contains(t, resp.RiskComponents, "engagement")

	require.Len(t, resp.TransferOpportunities, 1)
	op := resp.TransferOpportunities[0]
	assert.Equal(t, "MATH101", op.SourceCourse)
	assert.Equal(t, "PHYS101", op.TargetCourse)
	assert.Len(t, deps.transfers, 1, "迁移机会应已落库")
}

func TestAnalyticsSnapshotCachedWithinTTL(t *testing.T) {
	perf, deps := analyticsFixture()
	svc := newAnalytics(perf, deps, &fakeConsent{})
	req := model.CrossCourseAnalyticsRequest{StudentID: 7}

	first, err := svc.GenerateCrossCourseAnalytics(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.GenerateCrossCourseAnalytics(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
	assert.Len(t, deps.transfers, 1, "缓存命中不应重复落库")
}

func TestAnalyticsConsentDenialExcludesPairEverywhere(t *testing.T) {
	perf, deps := analyticsFixture()
	consent := &fakeConsent{}
	consent.deny(7, "MATH101", "PHYS101")
	svc := newAnalytics(perf, deps, consent)

	resp, err := svc.GenerateCrossCourseAnalytics(context.Background(), model.CrossCourseAnalyticsRequest{StudentID: 7})
	require.NoError(t, err, "拒绝授权是静默过滤而非错误")

	assert.Empty(t, resp.Dependencies)
	assert.Empty(t, resp.Correlations)
	assert.Empty(t, resp.TransferOpportunities)
	assert.Empty(t, resp.GapAnalysis.Gaps)
	// 课程状态只依赖学生本人的数据，不受课程对授权影响
	assert.Len(t, resp.CourseStatuses, 2)
}

func TestAnalyticsConsentLookupErrorIsPrivacyViolation(t *testing.T) {
	perf, deps := analyticsFixture()
	consent := &fakeConsent{err: assert.AnError}
	svc := newAnalytics(perf, deps, consent)

	_, err := svc.GenerateCrossCourseAnalytics(context.Background(), model.CrossCourseAnalyticsRequest{StudentID: 7})
	assert.Equal(t, util.KindPrivacyViolation, util.KindOf(err))
}

func TestAnalyticsActionItemsForElevatedRisk(t *testing.T) {
	perf, deps := analyticsFixture()
	// 两门课都下滑：先修概念掌握不足，测评分数持续走低
	m := perf.perf["MATH101"][7]
	m.OverallPerformance = 0.5
	m.Concepts[0].MasteryLevel = 0.3
	m.Concepts[0].AssessmentPoints = scorePoints(0.9, -0.04, 12, time.Now().AddDate(0, 0, -50))
	p := perf.perf["PHYS101"][7]
	p.OverallPerformance = 0.4
	p.Concepts[0].AssessmentPoints = scorePoints(0.8, -0.04, 12, time.Now().AddDate(0, 0, -50).Add(time.Hour))

	svc := newAnalytics(perf, deps, &fakeConsent{})
	resp, err := svc.GenerateCrossCourseAnalytics(context.Background(), model.CrossCourseAnalyticsRequest{StudentID: 7})
	require.NoError(t, err)

	require.Len(t, resp.GapAnalysis.Gaps, 1)
	assert.Greater(t, resp.AcademicRiskScore, 0.7)

	var gapItems, reviewItems int
	for _, item := range resp.ActionItems {
		switch item.Type {
		case model.ActionKnowledgeGap:
			gapItems++
			assert.Equal(t, "algebra", item.Concept)
		case model.ActionReviewNeeded:
			reviewItems++
			assert.Equal(t, 60, item.EstimatedMinutes)
		}
	}
	assert.Equal(t, 1, gapItems)
	assert.Equal(t, 2, reviewItems, "每门 struggling 课程一条复习项")

	for i := 1; i < len(resp.ActionItems); i++ {
		assert.LessOrEqual(t, resp.ActionItems[i-1].Priority.Rank(), resp.ActionItems[i].Priority.Rank())
	}
}
