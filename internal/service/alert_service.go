package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/repository"
	"edu_insight_backend/internal/util"
	"edu_insight_backend/pkg/logger"
	"edu_insight_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AlertService 把知识缺口转化为面向教师的持久预警并追踪其有效性。
type AlertService struct {
	cfgMu sync.RWMutex
	cfg   config.AlertConfig

	Store AlertStore
	Gaps  *GapAnalyzerService
	Perf  PerformanceProvider
	Users StudentRoster
	Notif AlertNotifier
}

func NewAlertService(
	store AlertStore,
	gaps *GapAnalyzerService,
	perf PerformanceProvider,
	users StudentRoster,
	notifier AlertNotifier,
	cfg config.AlertConfig,
) *AlertService {
	return &AlertService{
		cfg:   cfg,
		Store: store,
		Gaps:  gaps,
		Perf:  perf,
		Users: users,
		Notif: notifier,
	}
}

func (s *AlertService) Config() config.AlertConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetConfig 配置热更新入口。
func (s *AlertService) SetConfig(cfg config.AlertConfig) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg = cfg
}

// GenerateGapAlert 为达到严重度门槛的缺口逐条生成预警。
// 单条失败只记日志，不影响同批其余缺口。
func (s *AlertService) GenerateGapAlert(
	ctx context.Context,
	studentID uint,
	courseCode string,
	instructorID uint,
	gaps []model.KnowledgeGap,
) ([]model.CrossCourseGapAlert, error) {
	cfg := s.Config()

	var created []model.CrossCourseGapAlert
	for _, gap := range gaps {
		if gap.Severity < cfg.SeverityThreshold {
			continue
		}

		alert, err := s.buildAlert(studentID, courseCode, instructorID, gap)
		if err != nil {
			logger.Log.Error("build gap alert failed",
				zap.Uint("studentId", studentID),
				zap.String("concept", gap.Concept),
				zap.Error(err))
			continue
		}
		if err := s.Store.Create(ctx, alert); err != nil {
			logger.Log.Error("persist gap alert failed",
				zap.Uint("studentId", studentID),
				zap.String("concept", gap.Concept),
				zap.Error(err))
			continue
		}
		monitoring.GapAlertsGenerated.Inc()

		// 射后不理：通知失败不回滚已落库的预警
		go func(a model.CrossCourseGapAlert) {
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if nerr := s.Notif.NotifyAlert(nctx, &a); nerr != nil {
				logger.Log.Warn("alert notification failed", zap.String("alertId", a.ID), zap.Error(nerr))
			}
		}(*alert)

		created = append(created, *alert)
	}
	return created, nil
}

func (s *AlertService) buildAlert(
	studentID uint,
	courseCode string,
	instructorID uint,
	gap model.KnowledgeGap,
) (*model.CrossCourseGapAlert, error) {
	prediction := alertImpactPrediction(gap)
	recommendations := buildRecommendations(gap)

	gapJSON, err := json.Marshal(gap)
	if err != nil {
		return nil, err
	}
	predJSON, err := json.Marshal(prediction)
	if err != nil {
		return nil, err
	}
	recJSON, err := json.Marshal(recommendations)
	if err != nil {
		return nil, err
	}

	return &model.CrossCourseGapAlert{
		StudentID:           studentID,
		InstructorID:        instructorID,
		CourseCode:          courseCode,
		PrerequisiteCourse:  gap.PrerequisiteCourse,
		Concept:             gap.Concept,
		Severity:            gap.Severity,
		Priority:            gap.Priority,
		Status:              model.AlertPending,
		GapJSON:             string(gapJSON),
		PredictionJSON:      string(predJSON),
		RecommendationsJSON: string(recJSON),
		PredictedImpactAt:   time.Now().AddDate(0, 0, prediction.DaysUntilImpact),
	}, nil
}

// alertImpactPrediction 预警携带的影响预测：时间线按严重度分档，
// 预计下滑为严重度 ×0.7，置信度固定 0.75。
func alertImpactPrediction(gap model.KnowledgeGap) model.ImpactPrediction {
	var days int
	switch {
	case gap.Severity >= 0.8:
		days = 3
	case gap.Severity >= 0.6:
		days = 7
	case gap.Severity >= 0.4:
		days = 14
	default:
		days = 30
	}

	course := ""
	if len(gap.ImpactedCourses) > 0 {
		course = gap.ImpactedCourses[0]
	}

	return model.ImpactPrediction{
		CourseCode:               course,
		Concept:                  gap.Concept,
		DaysUntilImpact:          days,
		Severity:                 gap.Severity,
		PredictedPerformanceDrop: gap.Severity * 0.7,
		Confidence:               0.75,
	}
}

// buildRecommendations 每条预警 1 到 3 条干预建议。
func buildRecommendations(gap model.KnowledgeGap) []model.InterventionRecommendation {
	var recs []model.InterventionRecommendation

	if gap.Priority == model.PriorityCritical {
		recs = append(recs, model.InterventionRecommendation{
			Type:             model.InterventionTutorReferral,
			Title:            fmt.Sprintf("Refer student to tutoring for %s", gap.Concept),
			Description:      fmt.Sprintf("Critical prerequisite gap in %q from %s. One-on-one tutoring is recommended before the impact window closes.", gap.Concept, gap.PrerequisiteCourse),
			Priority:         5,
			EstimatedMinutes: 60,
		})
	}

	recs = append(recs, model.InterventionRecommendation{
		Type:             model.InterventionReviewSession,
		Title:            fmt.Sprintf("Guided review of %s", gap.Concept),
		Description:      fmt.Sprintf("Targeted review of %q material from %s.", gap.Concept, gap.PrerequisiteCourse),
		Priority:         gapRecommendationPriority(gap),
		EstimatedMinutes: int(math.Round(gap.EstimatedReviewHours * 60)),
	})

	if len(gap.PrerequisiteTopics) > 0 {
		recs = append(recs, model.InterventionRecommendation{
			Type:             model.InterventionPracticeAssignment,
			Title:            fmt.Sprintf("Practice set covering %s foundations", gap.Concept),
			Description:      fmt.Sprintf("Assign practice problems spanning %v before revisiting %q.", gap.PrerequisiteTopics, gap.Concept),
			Priority:         gapRecommendationPriority(gap) - 1,
			EstimatedMinutes: 45,
		})
	}

	if len(recs) > 3 {
		recs = recs[:3]
	}
	return recs
}

func gapRecommendationPriority(gap model.KnowledgeGap) int {
	switch gap.Priority {
	case model.PriorityCritical:
		return 5
	case model.PriorityHigh:
		return 4
	case model.PriorityMedium:
		return 3
	default:
		return 2
	}
}

// ProcessBatchAlerts 对课程集合内的每个在读学生跑缺口分析并走单条预警路径。
// 单个学生的失败不影响其余学生。
func (s *AlertService) ProcessBatchAlerts(
	ctx context.Context,
	instructorID uint,
	courseCodes []string,
	alertThreshold float64,
	maxAlertsPerStudent int,
) ([]model.CrossCourseGapAlert, error) {
	cfg := s.Config()
	if alertThreshold <= 0 {
		alertThreshold = cfg.BatchThreshold
	}
	if maxAlertsPerStudent <= 0 {
		maxAlertsPerStudent = cfg.MaxAlertsPerStudent
	}

	var all []model.CrossCourseGapAlert
	for _, courseCode := range courseCodes {
		studentIDs, err := s.Users.ListStudentIDsByCourse(courseCode)
		if err != nil {
			logger.Log.Error("roster lookup failed", zap.String("course", courseCode), zap.Error(err))
			continue
		}

		for _, studentID := range studentIDs {
			alerts, serr := s.alertsForStudent(ctx, studentID, courseCode, instructorID, alertThreshold, maxAlertsPerStudent)
			if serr != nil {
				logger.Log.Error("batch alert generation failed for student",
					zap.Uint("studentId", studentID),
					zap.String("course", courseCode),
					zap.Error(serr))
				continue
			}
			all = append(all, alerts...)
		}
	}
	return all, nil
}

func (s *AlertService) alertsForStudent(
	ctx context.Context,
	studentID uint,
	courseCode string,
	instructorID uint,
	threshold float64,
	maxAlerts int,
) ([]model.CrossCourseGapAlert, error) {
	enrollments, err := s.Perf.GetEnrollments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	var active []string
	for _, e := range enrollments {
		if e.Active {
			active = append(active, e.CourseCode)
		}
	}

	result, err := s.Gaps.AnalyzePrerequisiteGaps(ctx, studentID, active, false)
	if err != nil {
		return nil, err
	}

	var eligible []model.KnowledgeGap
	for _, g := range result.Gaps {
		if g.Severity >= threshold {
			eligible = append(eligible, g)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Severity > eligible[j].Severity })
	if len(eligible) > maxAlerts {
		eligible = eligible[:maxAlerts]
	}

	return s.GenerateGapAlert(ctx, studentID, courseCode, instructorID, eligible)
}

// AcknowledgeAlert 幂等：已确认的预警重复确认直接返回当前状态。
func (s *AlertService) AcknowledgeAlert(ctx context.Context, alertID string, instructorID uint) (*model.CrossCourseGapAlert, error) {
	return s.transition(ctx, alertID, instructorID, model.AlertAcknowledged)
}

// UpdateAlertStatus 幂等状态迁移，成功后使该教师的列表缓存失效。
func (s *AlertService) UpdateAlertStatus(ctx context.Context, alertID string, instructorID uint, status model.AlertStatus) (*model.CrossCourseGapAlert, error) {
	switch status {
	case model.AlertPending, model.AlertAcknowledged, model.AlertResolved:
	default:
		return nil, util.ErrInvalidStatus
	}
	return s.transition(ctx, alertID, instructorID, status)
}

func (s *AlertService) transition(ctx context.Context, alertID string, instructorID uint, status model.AlertStatus) (*model.CrossCourseGapAlert, error) {
	alert, err := s.Store.FindByID(ctx, alertID)
	if err != nil {
		return nil, util.ErrAlertNotFound
	}
	if alert.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}
	if alert.Status == status {
		return alert, nil
	}

	now := time.Now()
	alert.Status = status
	switch status {
	case model.AlertAcknowledged:
		if alert.AcknowledgedAt == nil {
			alert.AcknowledgedAt = &now
		}
	case model.AlertResolved:
		if alert.ResolvedAt == nil {
			alert.ResolvedAt = &now
		}
	}
	if err := s.Store.Save(ctx, alert); err != nil {
		return nil, err
	}
	s.Store.InvalidateListing(ctx, instructorID)
	return alert, nil
}

// ListAlerts 教师侧分页列表，仓储层带 Redis 缓存。
func (s *AlertService) ListAlerts(ctx context.Context, instructorID uint, f repository.AlertListFilter) (*repository.AlertPage, error) {
	return s.Store.ListByInstructor(ctx, instructorID, f)
}

// GetAlert 返回 JSON 字段已反序列化的预警视图。
func (s *AlertService) GetAlert(ctx context.Context, alertID string, instructorID uint) (*model.AlertView, error) {
	alert, err := s.Store.FindByID(ctx, alertID)
	if err != nil {
		return nil, util.ErrAlertNotFound
	}
	if alert.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}

	view := &model.AlertView{CrossCourseGapAlert: *alert}
	if alert.GapJSON != "" {
		var gap model.KnowledgeGap
		if json.Unmarshal([]byte(alert.GapJSON), &gap) == nil {
			view.Gap = &gap
		}
	}
	if alert.PredictionJSON != "" {
		var pred model.ImpactPrediction
		if json.Unmarshal([]byte(alert.PredictionJSON), &pred) == nil {
			view.Prediction = &pred
		}
	}
	if alert.RecommendationsJSON != "" {
		var recs []model.InterventionRecommendation
		if json.Unmarshal([]byte(alert.RecommendationsJSON), &recs) == nil {
			view.Recommendations = recs
		}
	}
	return view, nil
}

// RecordAlertEffectiveness 追加一条反馈记录，从不修改既有反馈。
func (s *AlertService) RecordAlertEffectiveness(
	ctx context.Context,
	alertID string,
	instructorID uint,
	wasActedUpon bool,
	interventionType string,
	outcome model.StudentOutcome,
	timeToActionHours *float64,
	feedbackRating *int,
) error {
	alert, err := s.Store.FindByID(ctx, alertID)
	if err != nil {
		return util.ErrAlertNotFound
	}
	if alert.InstructorID != instructorID {
		return util.ErrPermissionDenied
	}

	fb := &model.AlertFeedback{
		AlertID:           alertID,
		InstructorID:      instructorID,
		WasActedUpon:      wasActedUpon,
		InterventionType:  interventionType,
		StudentOutcome:    outcome,
		TimeToActionHours: timeToActionHours,
		FeedbackRating:    feedbackRating,
	}
	return s.Store.CreateFeedback(ctx, fb)
}

// GetAlertAnalytics 时间窗内的预警有效性汇总。
func (s *AlertService) GetAlertAnalytics(ctx context.Context, instructorID uint, timeframeDays int) (*model.AlertAnalytics, error) {
	if timeframeDays <= 0 {
		timeframeDays = 30
	}
	since := time.Now().AddDate(0, 0, -timeframeDays)

	total, err := s.Store.CountByInstructorSince(ctx, instructorID, since)
	if err != nil {
		return nil, err
	}
	feedbacks, err := s.Store.ListFeedbackSince(ctx, instructorID, since)
	if err != nil {
		return nil, err
	}

	analytics := &model.AlertAnalytics{
		InstructorID:        instructorID,
		TimeframeDays:       timeframeDays,
		TotalAlerts:         total,
		FeedbackCount:       int64(len(feedbacks)),
		OutcomeDistribution: make(map[string]int),
	}
	if len(feedbacks) == 0 {
		return analytics, nil
	}

	acted := 0
	var timeSum float64
	timeCount := 0
	var ratingSum int
	ratingCount := 0
	for _, fb := range feedbacks {
		if fb.WasActedUpon {
			acted++
		}
		if fb.StudentOutcome != "" {
			analytics.OutcomeDistribution[string(fb.StudentOutcome)]++
		}
		if fb.TimeToActionHours != nil {
			timeSum += *fb.TimeToActionHours
			timeCount++
		}
		if fb.FeedbackRating != nil {
			ratingSum += *fb.FeedbackRating
			ratingCount++
		}
	}

	analytics.ActionRate = float64(acted) / float64(len(feedbacks)) * 100
	if timeCount > 0 {
		analytics.AvgTimeToActionHrs = timeSum / float64(timeCount)
	}
	if ratingCount > 0 {
		analytics.AvgFeedbackRating = float64(ratingSum) / float64(ratingCount)
	}
	return analytics, nil
}
