package service

import (
	"context"
	"fmt"
	"testing"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cohortPair 构造两门课程、同一批学生、完全相关的掌握度序列。
func cohortPair(courseA, conceptA, courseB, conceptB string, students int) []model.CoursePerformanceData {
	var out []model.CoursePerformanceData
	for i := 0; i < students; i++ {
		level := 0.1 + 0.8*float64(i)/float64(students-1)
		out = append(out,
			model.CoursePerformanceData{
				StudentID:  uint(i + 1),
				CourseCode: courseA,
				Concepts:   []model.ConceptPerformance{{Concept: conceptA, MasteryLevel: level}},
			},
			model.CoursePerformanceData{
				StudentID:  uint(i + 1),
				CourseCode: courseB,
				Concepts:   []model.ConceptPerformance{{Concept: conceptB, MasteryLevel: level * 0.9}},
			},
		)
	}
	return out
}

func newMapper(deps *fakeDependencyStore, consent *fakeConsent) *DependencyMapperService {
	return NewDependencyMapperService(
		newFakePerformance(),
		deps,
		consent,
		NewLexicalConceptSimilarity(deps),
		config.DefaultAnalyticsConfig(),
	)
}

func TestAnalyzeRequiresTwoCourses(t *testing.T) {
	mapper := newMapper(newFakeDependencyStore(), &fakeConsent{})

	_, err := mapper.AnalyzeCrossCoursePatterns(context.Background(), []model.CoursePerformanceData{
		{StudentID: 1, CourseCode: "MATH101"},
	}, nil)

	require.Error(t, err)
	assert.Equal(t, util.KindInvalidCourseSequence, util.KindOf(err))
}

func TestAnalyzeDirectionFromCourseNumbers(t *testing.T) {
	deps := newFakeDependencyStore()
	deps.courses["MATH101"] = &model.Course{Code: "MATH101", Title: "College Algebra", Number: 101}
	deps.courses["MATH201"] = &model.Course{Code: "MATH201", Title: "Multivariable Calculus", Number: 201}
	mapper := newMapper(deps, &fakeConsent{})

	data := cohortPair("MATH201", "algebra", "MATH101", "algebra", 50)
	found, err := mapper.AnalyzeCrossCoursePatterns(context.Background(), data, nil)

	require.NoError(t, err)
	require.Len(t, found, 1)
	dep := found[0]
	// 课程编号 101 在前，与遍历顺序无关
	assert.Equal(t, "MATH101", dep.PrerequisiteCourse)
	assert.Equal(t, "MATH201", dep.DependentCourse)
	assert.Equal(t, 50, dep.SampleSize)
	assert.InDelta(t, 1.0, dep.Correlation, 1e-9)
	assert.InDelta(t, 1.0, dep.Strength, 1e-9)
	assert.InDelta(t, 1.0, dep.ValidationScore, 1e-9)
}

func TestAnalyzeConcurrentKeptOnlyWhenStrong(t *testing.T) {
	deps := newFakeDependencyStore()
	// 同编号课程，方向无法判定
	deps.courses["BIO110"] = &model.Course{Code: "BIO110", Title: "Cell Biology", Number: 110}
	deps.courses["CHEM110"] = &model.Course{Code: "CHEM110", Title: "General Chemistry", Number: 110}
	mapper := newMapper(deps, &fakeConsent{})

	data := cohortPair("BIO110", "metabolism", "CHEM110", "metabolism", 30)
	found, err := mapper.AnalyzeCrossCoursePatterns(context.Background(), data, nil)

	require.NoError(t, err)
	require.Len(t, found, 1)
	// 强相关的并行课程对保留，置信度打八折
	assert.InDelta(t, 0.8, found[0].ValidationScore, 1e-9)
}

func TestAnalyzeConsentDeniedPairExcluded(t *testing.T) {
	deps := newFakeDependencyStore()
	deps.courses["MATH101"] = &model.Course{Code: "MATH101", Title: "College Algebra", Number: 101}
	deps.courses["MATH201"] = &model.Course{Code: "MATH201", Title: "Multivariable Calculus", Number: 201}

	consent := &fakeConsent{}
	for i := 1; i <= 50; i++ {
		consent.deny(uint(i), "MATH101", "MATH201")
	}
	mapper := newMapper(deps, consent)

	data := cohortPair("MATH101", "algebra", "MATH201", "algebra", 50)
	found, err := mapper.AnalyzeCrossCoursePatterns(context.Background(), data, nil)

	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAnalyzeConsentLookupErrorIsPrivacyViolation(t *testing.T) {
	deps := newFakeDependencyStore()
	deps.courses["MATH101"] = &model.Course{Code: "MATH101", Title: "College Algebra", Number: 101}
	deps.courses["MATH201"] = &model.Course{Code: "MATH201", Title: "Multivariable Calculus", Number: 201}
	mapper := newMapper(deps, &fakeConsent{err: fmt.Errorf("consent store down")})

	data := cohortPair("MATH101", "algebra", "MATH201", "algebra", 50)
	found, err := mapper.AnalyzeCrossCoursePatterns(context.Background(), data, nil)

	// 单对的失败按对隔离，整体分析返回空集而不报错
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestAnalyzeSmallSampleSkipped(t *testing.T) {
	deps := newFakeDependencyStore()
	deps.courses["MATH101"] = &model.Course{Code: "MATH101", Title: "College Algebra", Number: 101}
	deps.courses["MATH201"] = &model.Course{Code: "MATH201", Title: "Multivariable Calculus", Number: 201}
	mapper := newMapper(deps, &fakeConsent{})

	data := cohortPair("MATH101", "algebra", "MATH201", "algebra", 5)
	found, err := mapper.AnalyzeCrossCoursePatterns(context.Background(), data, nil)

	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestValidateDependenciesRejectsBadEdges(t *testing.T) {
	mapper := newMapper(newFakeDependencyStore(), &fakeConsent{})

	deps := []model.KnowledgeDependency{
		{PrerequisiteCourse: "A", PrerequisiteConcept: "x", DependentCourse: "A", DependentConcept: "x", Strength: 0.9, ValidationScore: 0.9},
		{PrerequisiteCourse: "A", PrerequisiteConcept: "x", DependentCourse: "B", DependentConcept: "y", Strength: 0.05, ValidationScore: 0.9},
		{PrerequisiteCourse: "A", PrerequisiteConcept: "x", DependentCourse: "B", DependentConcept: "y", Strength: 0.9, ValidationScore: 0.4},
		{PrerequisiteCourse: "A", PrerequisiteConcept: "x", DependentCourse: "B", DependentConcept: "y", Strength: 0.9, ValidationScore: 0.9},
	}

	valid, invalid := mapper.ValidateDependencies(deps)
	assert.Len(t, valid, 1)
	assert.Len(t, invalid, 3)
}

func TestUpdateDependencyStrengthsBlendsNotOverwrites(t *testing.T) {
	deps := newFakeDependencyStore()
	mapper := newMapper(deps, &fakeConsent{})

	existing := []model.KnowledgeDependency{{
		PrerequisiteCourse:  "MATH101",
		PrerequisiteConcept: "algebra",
		DependentCourse:     "MATH201",
		DependentConcept:    "algebra",
		Strength:            0.5,
		Correlation:         0.5,
		SampleSize:          10,
	}}

	data := cohortPair("MATH101", "algebra", "MATH201", "algebra", 20)
	updated, err := mapper.UpdateDependencyStrengths(context.Background(), existing, data)

	require.NoError(t, err)
	require.Len(t, updated, 1)
	// α=0.3 平滑：0.3*1.0 + 0.7*0.5
	assert.InDelta(t, 0.65, updated[0].Strength, 1e-9)
	assert.InDelta(t, 0.65, updated[0].Correlation, 1e-9)
	assert.Equal(t, 30, updated[0].SampleSize)
}

func TestDiscoverAndPersistValidatesBeforeUpsert(t *testing.T) {
	deps := newFakeDependencyStore()
	deps.courses["MATH101"] = &model.Course{Code: "MATH101", Title: "College Algebra", Number: 101}
	deps.courses["MATH201"] = &model.Course{Code: "MATH201", Title: "Multivariable Calculus", Number: 201}

	perf := newFakePerformance()
	for _, pd := range cohortPair("MATH101", "algebra", "MATH201", "algebra", 50) {
		perf.add(pd)
	}
	mapper := NewDependencyMapperService(perf, deps, &fakeConsent{}, NewLexicalConceptSimilarity(deps), config.DefaultAnalyticsConfig())

	found, err := mapper.DiscoverAndPersist(context.Background(), []string{"MATH101", "MATH201"})

	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Len(t, deps.upserted, 1)
	assert.False(t, deps.upserted[0].IsSelfLoop())
}
