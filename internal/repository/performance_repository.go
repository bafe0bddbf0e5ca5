package repository

import (
	"context"
	"time"

	"edu_insight_backend/internal/model"

	"gorm.io/gorm"
)

// PerformanceRepository 实现性能数据提供方接口：
// 按请求把掌握摘要、测评历史与困难信号装配成课程级表现数据。
type PerformanceRepository struct {
	DB *gorm.DB
}

func NewPerformanceRepository(db *gorm.DB) *PerformanceRepository {
	return &PerformanceRepository{DB: db}
}

func (r *PerformanceRepository) GetCoursePerformance(ctx context.Context, studentID uint, courseCode string) (*model.CoursePerformanceData, error) {
	var masteries []model.ConceptMastery
	if err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_code = ?", studentID, courseCode).
		Find(&masteries).Error; err != nil {
		return nil, err
	}

	var records []model.AssessmentRecord
	if err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_code = ?", studentID, courseCode).
		Order("recorded_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	// 按概念归组测评点
	pointsByConcept := make(map[string][]model.AssessmentPoint)
	for _, rec := range records {
		pointsByConcept[rec.Concept] = append(pointsByConcept[rec.Concept], model.AssessmentPoint{
			Timestamp:        rec.RecordedAt,
			Score:            rec.Score,
			Kind:             rec.Kind,
			TimeSpentMinutes: rec.TimeSpentMinutes,
		})
	}

	concepts := make([]model.ConceptPerformance, 0, len(masteries))
	var masterySum float64
	masteredCount := 0
	for _, m := range masteries {
		concepts = append(concepts, model.ConceptPerformance{
			Concept:           m.Concept,
			MasteryLevel:      m.MasteryLevel,
			Confidence:        m.Confidence,
			TimeToMasteryDays: m.TimeToMasteryDays,
			Struggling:        m.Struggling,
			ReviewCount:       m.ReviewCount,
			LastAssessedAt:    m.LastAssessedAt,
			AssessmentPoints:  pointsByConcept[m.Concept],
		})
		masterySum += m.MasteryLevel
		if m.MasteryLevel >= 0.7 {
			masteredCount++
		}
	}

	var indicators []model.StruggleIndicator
	if err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_code = ?", studentID, courseCode).
		Find(&indicators).Error; err != nil {
		return nil, err
	}

	data := &model.CoursePerformanceData{
		StudentID:          studentID,
		CourseCode:         courseCode,
		Concepts:           concepts,
		StruggleIndicators: indicators,
	}

	if len(masteries) > 0 {
		data.OverallPerformance = masterySum / float64(len(masteries))
	}

	var enrollment model.CourseEnrollment
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_code = ?", studentID, courseCode).
		First(&enrollment).Error
	if err == nil {
		data.DaysEnrolled = int(time.Since(enrollment.EnrolledAt).Hours() / 24)
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	// 学习速度：每周掌握概念数，按 3 个/周 渐进饱和到 1
	if data.DaysEnrolled > 0 {
		weeks := float64(data.DaysEnrolled) / 7.0
		if weeks < 1 {
			weeks = 1
		}
		velocity := float64(masteredCount) / weeks / 3.0
		if velocity > 1 {
			velocity = 1
		}
		data.LearningVelocity = velocity
	}

	return data, nil
}

func (r *PerformanceRepository) GetEnrollments(ctx context.Context, studentID uint) ([]model.CourseEnrollment, error) {
	var enrollments []model.CourseEnrollment
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND active = ?", studentID, true).
		Order("enrolled_at ASC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *PerformanceRepository) GetEngagementMetrics(ctx context.Context, studentID uint) (*model.EngagementStat, error) {
	var stat model.EngagementStat
	err := r.DB.WithContext(ctx).Where("student_id = ?", studentID).First(&stat).Error
	if err == gorm.ErrRecordNotFound {
		// 无埋点数据不是错误，按零参与度处理
		return &model.EngagementStat{StudentID: studentID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// GetCohortPerformance 某课程全部在读学生的表现数据，依赖推断的输入。
func (r *PerformanceRepository) GetCohortPerformance(ctx context.Context, courseCode string) ([]model.CoursePerformanceData, error) {
	var studentIDs []uint
	if err := r.DB.WithContext(ctx).Model(&model.CourseEnrollment{}).
		Where("course_code = ? AND active = ?", courseCode, true).
		Pluck("student_id", &studentIDs).Error; err != nil {
		return nil, err
	}

	cohort := make([]model.CoursePerformanceData, 0, len(studentIDs))
	for _, id := range studentIDs {
		data, err := r.GetCoursePerformance(ctx, id, courseCode)
		if err != nil {
			return nil, err
		}
		cohort = append(cohort, *data)
	}
	return cohort, nil
}

func (r *PerformanceRepository) GetCognitiveProfiles(ctx context.Context, studentIDs []uint) ([]model.LearnerCognitiveProfile, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var profiles []model.LearnerCognitiveProfile
	err := r.DB.WithContext(ctx).
		Where("student_id IN ?", studentIDs).
		Find(&profiles).Error
	return profiles, err
}
