package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/repository"
	"edu_insight_backend/pkg/logger"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// ---- 许可门 ----

type fakeConsent struct {
	denied map[string]bool // student|src|dst
	err    error
}

func consentKey(studentID uint, src, dst string) string {
	return fmt.Sprintf("%d|%s|%s", studentID, src, dst)
}

func (f *fakeConsent) deny(studentID uint, src, dst string) {
	if f.denied == nil {
		f.denied = make(map[string]bool)
	}
	f.denied[consentKey(studentID, src, dst)] = true
}

func (f *fakeConsent) IsAccessPermitted(_ context.Context, studentID uint, src, dst, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.denied[consentKey(studentID, src, dst)], nil
}

// ---- 表现数据提供方 ----

type fakePerformance struct {
	perf        map[string]map[uint]*model.CoursePerformanceData // course -> student
	enrollments map[uint][]model.CourseEnrollment
	engagement  map[uint]*model.EngagementStat
	profiles    []model.LearnerCognitiveProfile
	perfErr     error
	cohortErr   error
}

func newFakePerformance() *fakePerformance {
	return &fakePerformance{
		perf:        make(map[string]map[uint]*model.CoursePerformanceData),
		enrollments: make(map[uint][]model.CourseEnrollment),
		engagement:  make(map[uint]*model.EngagementStat),
	}
}

func (f *fakePerformance) add(p model.CoursePerformanceData) {
	if f.perf[p.CourseCode] == nil {
		f.perf[p.CourseCode] = make(map[uint]*model.CoursePerformanceData)
	}
	cp := p
	f.perf[p.CourseCode][p.StudentID] = &cp
}

func (f *fakePerformance) enroll(studentID uint, courseCode string, daysAgo int) {
	f.enrollments[studentID] = append(f.enrollments[studentID], model.CourseEnrollment{
		StudentID:  studentID,
		CourseCode: courseCode,
		EnrolledAt: time.Now().AddDate(0, 0, -daysAgo),
		Active:     true,
	})
}

func (f *fakePerformance) GetCoursePerformance(_ context.Context, studentID uint, courseCode string) (*model.CoursePerformanceData, error) {
	if f.perfErr != nil {
		return nil, f.perfErr
	}
	if p, ok := f.perf[courseCode][studentID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no performance data for student %d in %s", studentID, courseCode)
}

func (f *fakePerformance) GetEnrollments(_ context.Context, studentID uint) ([]model.CourseEnrollment, error) {
	return f.enrollments[studentID], nil
}

func (f *fakePerformance) GetEngagementMetrics(_ context.Context, studentID uint) (*model.EngagementStat, error) {
	if e, ok := f.engagement[studentID]; ok {
		return e, nil
	}
	return &model.EngagementStat{StudentID: studentID}, nil
}

func (f *fakePerformance) GetCohortPerformance(_ context.Context, courseCode string) ([]model.CoursePerformanceData, error) {
	if f.cohortErr != nil {
		return nil, f.cohortErr
	}
	var out []model.CoursePerformanceData
	for _, p := range f.perf[courseCode] {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePerformance) GetCognitiveProfiles(_ context.Context, _ []uint) ([]model.LearnerCognitiveProfile, error) {
	return f.profiles, nil
}

// ---- 依赖图存取 ----

type fakeDependencyStore struct {
	mu        sync.Mutex
	deps      []model.KnowledgeDependency
	upserted  []model.KnowledgeDependency
	transfers []model.KnowledgeTransferOpportunity
	relations map[string][]string
	courses   map[string]*model.Course
}

func newFakeDependencyStore() *fakeDependencyStore {
	return &fakeDependencyStore{
		relations: make(map[string][]string),
		courses:   make(map[string]*model.Course),
	}
}

func (f *fakeDependencyStore) ListForCourses(_ context.Context, courseCodes []string) ([]model.KnowledgeDependency, error) {
	set := make(map[string]bool, len(courseCodes))
	for _, c := range courseCodes {
		set[c] = true
	}
	var out []model.KnowledgeDependency
	for _, d := range f.deps {
		if set[d.PrerequisiteCourse] && set[d.DependentCourse] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDependencyStore) GetCourseDependencies(_ context.Context, courseCode string) (*repository.CourseDependencyLinks, error) {
	links := &repository.CourseDependencyLinks{}
	for _, d := range f.deps {
		if d.DependentCourse == courseCode {
			links.Prerequisites = append(links.Prerequisites, d)
		}
		if d.PrerequisiteCourse == courseCode {
			links.Dependents = append(links.Dependents, d)
		}
	}
	return links, nil
}

func (f *fakeDependencyStore) Upsert(_ context.Context, dep *model.KnowledgeDependency) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, *dep)
	return nil
}

func (f *fakeDependencyStore) CreateTransferOpportunity(_ context.Context, op *model.KnowledgeTransferOpportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, *op)
	return nil
}

func (f *fakeDependencyStore) ListConceptRelations(_ context.Context) (map[string][]string, error) {
	return f.relations, nil
}

func (f *fakeDependencyStore) GetCourse(_ context.Context, courseCode string) (*model.Course, error) {
	if c, ok := f.courses[courseCode]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("course %s not found", courseCode)
}

// ---- 预警持久化 ----

type fakeAlertStore struct {
	mu           sync.Mutex
	alerts       map[string]*model.CrossCourseGapAlert
	feedbacks    []model.AlertFeedback
	createErr    error
	invalidated  int
	createdOrder []string
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{alerts: make(map[string]*model.CrossCourseGapAlert)}
}

func (f *fakeAlertStore) Create(_ context.Context, alert *model.CrossCourseGapAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if alert.ID == "" {
		alert.ID = fmt.Sprintf("alert-%d", len(f.alerts)+1)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	cp := *alert
	f.alerts[alert.ID] = &cp
	f.createdOrder = append(f.createdOrder, alert.ID)
	return nil
}

func (f *fakeAlertStore) FindByID(_ context.Context, id string) (*model.CrossCourseGapAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.alerts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("alert %s not found", id)
}

func (f *fakeAlertStore) Save(_ context.Context, alert *model.CrossCourseGapAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *alert
	f.alerts[alert.ID] = &cp
	return nil
}

func (f *fakeAlertStore) ListByInstructor(_ context.Context, instructorID uint, _ repository.AlertListFilter) (*repository.AlertPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &repository.AlertPage{}
	for _, a := range f.alerts {
		if a.InstructorID == instructorID {
			page.Alerts = append(page.Alerts, *a)
		}
	}
	page.Total = int64(len(page.Alerts))
	return page, nil
}

func (f *fakeAlertStore) InvalidateListing(_ context.Context, _ uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeAlertStore) CountByInstructorSince(_ context.Context, instructorID uint, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.alerts {
		if a.InstructorID == instructorID && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAlertStore) CreateFeedback(_ context.Context, fb *model.AlertFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks = append(f.feedbacks, *fb)
	return nil
}

func (f *fakeAlertStore) ListFeedbackSince(_ context.Context, instructorID uint, _ time.Time) ([]model.AlertFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AlertFeedback
	for _, fb := range f.feedbacks {
		if fb.InstructorID == instructorID {
			out = append(out, fb)
		}
	}
	return out, nil
}

// ---- 学生名册与通知 ----

type fakeRoster struct {
	byCourse map[string][]uint
}

func (f *fakeRoster) ListStudentIDsByCourse(courseCode string) ([]uint, error) {
	return f.byCourse[courseCode], nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	count int
}

func (f *fakeNotifier) NotifyAlert(_ context.Context, _ *model.CrossCourseGapAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}
