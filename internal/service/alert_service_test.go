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

const alertInstructorID = uint(42)

func newAlertService(store *fakeAlertStore, perf *fakePerformance, deps *fakeDependencyStore, roster *fakeRoster) *AlertService {
	gaps := NewGapAnalyzerService(perf, deps, &fakeConsent{}, config.DefaultAnalyticsConfig())
	if roster == nil {
		roster = &fakeRoster{byCourse: map[string][]uint{}}
	}
	return NewAlertService(store, gaps, perf, roster, &fakeNotifier{}, config.DefaultAlertConfig())
}

func TestGenerateGapAlertFiltersBySeverity(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)

	gaps := []model.KnowledgeGap{
		{PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.63, Priority: model.PriorityHigh,
			ImpactedCourses: []string{"PHYS101"}, DependencyStrength: 0.8, EstimatedReviewHours: 3.5},
		{PrerequisiteCourse: "MATH101", Concept: "notation", Severity: 0.2, Priority: model.PriorityLow,
			ImpactedCourses: []string{"PHYS101"}},
	}

	created, err := svc.GenerateGapAlert(context.Background(), gapStudentID, "PHYS101", alertInstructorID, gaps)
	require.NoError(t, err)
	require.Len(t, created, 1, "低于门槛的缺口不产生预警")

	alert := created[0]
	assert.Equal(t, model.AlertPending, alert.Status)
	assert.Equal(t, "algebra", alert.Concept)
	assert.Equal(t, alertInstructorID, alert.InstructorID)
	assert.NotEmpty(t, alert.GapJSON)
	assert.NotEmpty(t, alert.PredictionJSON)
	assert.NotEmpty(t, alert.RecommendationsJSON)

	view, err := svc.GetAlert(context.Background(), alert.ID, alertInstructorID)
	require.NoError(t, err)
	require.NotNil(t, view.Prediction)
	// 0.63 落在 [0.6, 0.8) 档
	assert.Equal(t, 7, view.Prediction.DaysUntilImpact)
	assert.InDelta(t, 0.441, view.Prediction.PredictedPerformanceDrop, 1e-9)
	assert.Equal(t, 0.75, view.Prediction.Confidence)
	require.NotEmpty(t, view.Recommendations)
	assert.LessOrEqual(t, len(view.Recommendations), 3)
	assert.Equal(t, model.InterventionReviewSession, view.Recommendations[0].Type)
	assert.Equal(t, 210, view.Recommendations[0].EstimatedMinutes)
}

func TestGenerateGapAlertCriticalGetsTutorReferral(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)

	gaps := []model.KnowledgeGap{{
		PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.95, Priority: model.PriorityCritical,
		ImpactedCourses: []string{"PHYS101"}, DependencyStrength: 0.9, EstimatedReviewHours: 5,
		PrerequisiteTopics: []string{"arithmetic"},
	}}

	created, err := svc.GenerateGapAlert(context.Background(), gapStudentID, "PHYS101", alertInstructorID, gaps)
	require.NoError(t, err)
	require.Len(t, created, 1)

	view, err := svc.GetAlert(context.Background(), created[0].ID, alertInstructorID)
	require.NoError(t, err)
	require.Len(t, view.Recommendations, 3, "转介、复习、练习三条封顶")
	assert.Equal(t, model.InterventionTutorReferral, view.Recommendations[0].Type)
	assert.Equal(t, 5, view.Recommendations[0].Priority)
	assert.Equal(t, 3, view.Prediction.DaysUntilImpact)
}

func TestGenerateGapAlertStoreFailureIsolated(t *testing.T) {
	store := newFakeAlertStore()
	store.createErr = assert.AnError
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)

	created, err := svc.GenerateGapAlert(context.Background(), gapStudentID, "PHYS101", alertInstructorID,
		[]model.KnowledgeGap{{PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.9,
			Priority: model.PriorityHigh, ImpactedCourses: []string{"PHYS101"}}})

	require.NoError(t, err, "单条落库失败只记日志")
	assert.Empty(t, created)
}

func TestProcessBatchAlertsKeepsTopGapsPerStudent(t *testing.T) {
	store := newFakeAlertStore()
	perf := newFakePerformance()
	deps := newFakeDependencyStore()

	// 学生 7：五个先修概念全部掌握薄弱，依赖强度高
	perf.enroll(gapStudentID, "MATH101", 90)
	perf.enroll(gapStudentID, "PHYS101", 10)
	concepts := make([]model.ConceptPerformance, 0, 5)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("concept-%d", i)
		concepts = append(concepts, model.ConceptPerformance{Concept: name, MasteryLevel: 0.1, LastAssessedAt: recentTime()})
		deps.deps = append(deps.deps, model.KnowledgeDependency{
			PrerequisiteCourse:  "MATH101",
			PrerequisiteConcept: name,
			DependentCourse:     "PHYS101",
			DependentConcept:    "kinematics",
			Strength:            0.9,
			Correlation:         0.85,
			ValidationScore:     0.9,
			SampleSize:          40,
		})
	}
	perf.add(model.CoursePerformanceData{
		StudentID: gapStudentID, CourseCode: "MATH101",
		OverallPerformance: 0.4, DaysEnrolled: 90, Concepts: concepts,
	})
	perf.add(model.CoursePerformanceData{
		StudentID: gapStudentID, CourseCode: "PHYS101",
		OverallPerformance: 0.3, DaysEnrolled: 10,
		Concepts: []model.ConceptPerformance{{Concept: "kinematics", MasteryLevel: 0.4, LastAssessedAt: recentTime()}},
	})

	roster := &fakeRoster{byCourse: map[string][]uint{"PHYS101": {gapStudentID}}}
	svc := newAlertService(store, perf, deps, roster)

	created, err := svc.ProcessBatchAlerts(context.Background(), alertInstructorID, []string{"PHYS101"}, 0.5, 2)
	require.NoError(t, err)
	assert.Len(t, created, 2, "每个学生只保留最严重的 maxAlerts 条")
	assert.Len(t, store.createdOrder, 2)
}

func TestProcessBatchAlertsDefaultsFromConfig(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	perf.enroll(gapStudentID, "MATH101", 90)
	perf.enroll(gapStudentID, "PHYS101", 10)
	roster := &fakeRoster{byCourse: map[string][]uint{"PHYS101": {gapStudentID}}}
	svc := newAlertService(store, perf, deps, roster)

	// 阈值与上限传 0 时回落到配置默认 0.5 / 3
	created, err := svc.ProcessBatchAlerts(context.Background(), alertInstructorID, []string{"PHYS101"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.InDelta(t, 0.63, created[0].Severity, 1e-9)
}

func TestAcknowledgeAlertIsIdempotent(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)

	created, err := svc.GenerateGapAlert(context.Background(), gapStudentID, "PHYS101", alertInstructorID,
		[]model.KnowledgeGap{{PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.7,
			Priority: model.PriorityHigh, ImpactedCourses: []string{"PHYS101"}}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	id := created[0].ID

	first, err := svc.AcknowledgeAlert(context.Background(), id, alertInstructorID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, first.Status)
	require.NotNil(t, first.AcknowledgedAt)
	assert.Equal(t, 1, store.invalidated)

	second, err := svc.AcknowledgeAlert(context.Background(), id, alertInstructorID)
	require.NoError(t, err)
	assert.Equal(t, *first.AcknowledgedAt, *second.AcknowledgedAt)
	assert.Equal(t, 1, store.invalidated, "重复确认不再触发缓存失效")
}

func TestAlertTransitionGuards(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)

	created, err := svc.GenerateGapAlert(context.Background(), gapStudentID, "PHYS101", alertInstructorID,
		[]model.KnowledgeGap{{PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.7,
			Priority: model.PriorityHigh, ImpactedCourses: []string{"PHYS101"}}})
	require.NoError(t, err)
	id := created[0].ID

	_, err = svc.AcknowledgeAlert(context.Background(), "missing", alertInstructorID)
	assert.ErrorIs(t, err, util.ErrAlertNotFound)

	_, err = svc.AcknowledgeAlert(context.Background(), id, alertInstructorID+1)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.UpdateAlertStatus(context.Background(), id, alertInstructorID, model.AlertStatus("dismissed"))
	assert.ErrorIs(t, err, util.ErrInvalidStatus)

	resolved, err := svc.UpdateAlertStatus(context.Background(), id, alertInstructorID, model.AlertResolved)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestAlertAnalyticsActionRate(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)
	ctx := context.Background()

	created, err := svc.GenerateGapAlert(ctx, gapStudentID, "PHYS101", alertInstructorID,
		[]model.KnowledgeGap{{PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.7,
			Priority: model.PriorityHigh, ImpactedCourses: []string{"PHYS101"}}})
	require.NoError(t, err)
	id := created[0].ID

	hours := 4.0
	rating := 4
	require.NoError(t, svc.RecordAlertEffectiveness(ctx, id, alertInstructorID, true, "review-session", model.OutcomeImproved, &hours, &rating))
	require.NoError(t, svc.RecordAlertEffectiveness(ctx, id, alertInstructorID, false, "", model.OutcomeNoChange, nil, nil))

	analytics, err := svc.GetAlertAnalytics(ctx, alertInstructorID, 0)
	require.NoError(t, err)

	assert.Equal(t, 30, analytics.TimeframeDays, "时间窗默认 30 天")
	assert.Equal(t, int64(1), analytics.TotalAlerts)
	assert.Equal(t, int64(2), analytics.FeedbackCount)
	assert.InDelta(t, 50.0, analytics.ActionRate, 1e-9)
	assert.InDelta(t, 4.0, analytics.AvgTimeToActionHrs, 1e-9, "仅统计填写了耗时的反馈")
	assert.InDelta(t, 4.0, analytics.AvgFeedbackRating, 1e-9)
	assert.Equal(t, 1, analytics.OutcomeDistribution[string(model.OutcomeImproved)])
	assert.Equal(t, 1, analytics.OutcomeDistribution[string(model.OutcomeNoChange)])
}

func TestRecordFeedbackRequiresOwnership(t *testing.T) {
	store := newFakeAlertStore()
	perf, deps := gapFixture()
	svc := newAlertService(store, perf, deps, nil)

	created, err := svc.GenerateGapAlert(context.Background(), gapStudentID, "PHYS101", alertInstructorID,
		[]model.KnowledgeGap{{PrerequisiteCourse: "MATH101", Concept: "algebra", Severity: 0.7,
			Priority: model.PriorityHigh, ImpactedCourses: []string{"PHYS101"}}})
	require.NoError(t, err)

	err = svc.RecordAlertEffectiveness(context.Background(), created[0].ID, alertInstructorID+1, true, "", model.OutcomeImproved, nil, nil)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}
