package service

import (
	"context"
	"testing"
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gapStudentID = uint(7)

func recentTime() *time.Time {
	t := time.Now().AddDate(0, 0, -2)
	return &t
}

func gapFixture() (*fakePerformance, *fakeDependencyStore) {
	perf := newFakePerformance()
	perf.add(model.CoursePerformanceData{
		StudentID:          gapStudentID,
		CourseCode:         "MATH101",
		OverallPerformance: 0.5,
		DaysEnrolled:       90,
		Concepts: []model.ConceptPerformance{
			{Concept: "algebra", MasteryLevel: 0.4, LastAssessedAt: recentTime()},
		},
	})
	perf.add(model.CoursePerformanceData{
		StudentID:          gapStudentID,
		CourseCode:         "PHYS101",
		OverallPerformance: 0.5,
		DaysEnrolled:       10,
		Concepts: []model.ConceptPerformance{
			{Concept: "kinematics", MasteryLevel: 0.5, LastAssessedAt: recentTime()},
		},
	})

	deps := newFakeDependencyStore()
	deps.deps = []model.KnowledgeDependency{{
		PrerequisiteCourse:  "MATH101",
		PrerequisiteConcept: "algebra",
		DependentCourse:     "PHYS101",
		DependentConcept:    "kinematics",
		Strength:            0.8,
		ValidationScore:     0.9,
		Correlation:         0.8,
		SampleSize:          40,
	}}
	return perf, deps
}

func newGapAnalyzer(perf *fakePerformance, deps *fakeDependencyStore, consent *fakeConsent) *GapAnalyzerService {
	return NewGapAnalyzerService(perf, deps, consent, config.DefaultAnalyticsConfig())
}

func TestGapDetectedForWeakPrerequisite(t *testing.T) {
	perf, deps := gapFixture()
	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})

	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, false)

	require.NoError(t, err)
	require.Len(t, result.Gaps, 1)

	gap := result.Gaps[0]
	assert.Equal(t, "MATH101", gap.PrerequisiteCourse)
	assert.Equal(t, "algebra", gap.Concept)
	assert.Equal(t, []string{"PHYS101"}, gap.ImpactedCourses)
	// (1-0.4)*0.8 + (1-0.5)*0.3
	assert.InDelta(t, 0.63, gap.Severity, 1e-9)
	assert.Equal(t, model.PriorityHigh, gap.Priority)

	require.Len(t, result.ImpactPredictions, 1)
	pred := result.ImpactPredictions[0]
	assert.Equal(t, "PHYS101", pred.CourseCode)
	// round(14 + 0.37*7 + 0.2*7)
	assert.Equal(t, 18, pred.DaysUntilImpact)
	assert.InDelta(t, 0.315, pred.PredictedPerformanceDrop, 1e-9)
	// 0.7 + 0.2*0.9，两门课程数据都新鲜
	assert.InDelta(t, 0.88, pred.Confidence, 1e-9)

	require.Len(t, result.RiskFactors, 1)
	assert.Equal(t, "prerequisite_gap", result.RiskFactors[0].Category)
	assert.Equal(t, model.TimeframeMediumTerm, result.RiskFactors[0].Timeframe)

	// 唯一缺口严重度 > 0.5，整体置信度等于风险因子置信度
	assert.InDelta(t, 0.88, result.ConfidenceScore, 1e-9)
}

func TestGapSkippedOutsideEnrollmentWindow(t *testing.T) {
	perf, deps := gapFixture()
	p := perf.perf["PHYS101"][gapStudentID]
	p.DaysEnrolled = 45
	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})

	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, false)

	require.NoError(t, err)
	assert.Empty(t, result.Gaps)
	assert.Equal(t, 1.0, result.ConfidenceScore)
}

func TestGapSkippedWhenMasteryAdequate(t *testing.T) {
	perf, deps := gapFixture()
	p := perf.perf["MATH101"][gapStudentID]
	p.Concepts[0].MasteryLevel = 0.75
	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})

	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, false)

	require.NoError(t, err)
	assert.Empty(t, result.Gaps)
}

func TestGapConsentDenialFiltersSilently(t *testing.T) {
	perf, deps := gapFixture()
	consent := &fakeConsent{}
	consent.deny(gapStudentID, "MATH101", "PHYS101")
	analyzer := newGapAnalyzer(perf, deps, consent)

	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, false)

	require.NoError(t, err)
	assert.Empty(t, result.Gaps)
}

func TestGapLowSeverityFilteredAsFalsePositive(t *testing.T) {
	perf, deps := gapFixture()
	perf.perf["MATH101"][gapStudentID].Concepts[0].MasteryLevel = 0.59
	perf.perf["PHYS101"][gapStudentID].OverallPerformance = 0.95
	deps.deps[0].Strength = 0.12

	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})
	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, false)

	require.NoError(t, err)
	assert.Empty(t, result.Gaps)
}

func TestGapDeduplicationMergesImpactedCourses(t *testing.T) {
	perf, deps := gapFixture()
	perf.add(model.CoursePerformanceData{
		StudentID:          gapStudentID,
		CourseCode:         "CHEM101",
		OverallPerformance: 0.5,
		DaysEnrolled:       15,
		Concepts: []model.ConceptPerformance{
			{Concept: "stoichiometry", MasteryLevel: 0.5, LastAssessedAt: recentTime()},
		},
	})
	deps.deps = append(deps.deps, model.KnowledgeDependency{
		PrerequisiteCourse:  "MATH101",
		PrerequisiteConcept: "algebra",
		DependentCourse:     "CHEM101",
		DependentConcept:    "stoichiometry",
		Strength:            0.6,
		ValidationScore:     0.7,
		Correlation:         0.6,
		SampleSize:          30,
	})

	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})
	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID,
		[]string{"MATH101", "PHYS101", "CHEM101"}, false)

	require.NoError(t, err)
	require.Len(t, result.Gaps, 1)
	assert.ElementsMatch(t, []string{"PHYS101", "CHEM101"}, result.Gaps[0].ImpactedCourses)
}

func TestGapSeverityWithinBounds(t *testing.T) {
	perf, deps := gapFixture()
	deps.deps[0].Strength = 0.85
	perf.perf["MATH101"][gapStudentID].Concepts[0].MasteryLevel = 0.0
	perf.perf["PHYS101"][gapStudentID].OverallPerformance = 0.0
	perf.perf["PHYS101"][gapStudentID].StruggleIndicators = []model.StruggleIndicator{
		{StudentID: gapStudentID, CourseCode: "PHYS101", Severity: 0.9, Resolved: false},
	}

	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})
	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, false)

	require.NoError(t, err)
	require.Len(t, result.Gaps, 1)
	assert.LessOrEqual(t, result.Gaps[0].Severity, 1.0)
	assert.Greater(t, result.Gaps[0].Severity, 0.0)
	assert.Equal(t, model.PriorityCritical, result.Gaps[0].Priority)
}

func TestPreventiveGapFlaggedForSlowVelocity(t *testing.T) {
	perf, deps := gapFixture()
	m := perf.perf["MATH101"][gapStudentID]
	m.Concepts[0].MasteryLevel = 0.65 // 达标，不构成当前缺口
	m.LearningVelocity = 0.2
	m.OverallPerformance = 0.5
	// 另一个掌握不足且有依赖边的概念
	m.Concepts = append(m.Concepts, model.ConceptPerformance{Concept: "functions", MasteryLevel: 0.45, LastAssessedAt: recentTime()})
	deps.deps = append(deps.deps, model.KnowledgeDependency{
		PrerequisiteCourse:  "MATH101",
		PrerequisiteConcept: "functions",
		DependentCourse:     "PHYS101",
		DependentConcept:    "graph interpretation",
		Strength:            0.5,
		ValidationScore:     0.7,
		Correlation:         0.55,
		SampleSize:          25,
	})

	analyzer := newGapAnalyzer(perf, deps, &fakeConsent{})
	result, err := analyzer.AnalyzePrerequisiteGaps(context.Background(), gapStudentID, []string{"MATH101", "PHYS101"}, true)

	require.NoError(t, err)
	require.NotEmpty(t, result.Gaps)

	var preventive *model.KnowledgeGap
	for i := range result.Gaps {
		if result.Gaps[i].Preventive {
			preventive = &result.Gaps[i]
		}
	}
	require.NotNil(t, preventive)
	assert.Equal(t, "functions", preventive.Concept)
	assert.Equal(t, model.PriorityMedium, preventive.Priority)
}
