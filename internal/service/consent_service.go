package service

import (
	"context"

	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/repository"
)

// ConsentService 跨课程数据访问许可。键是有向的：
// (学生, 源课程, 目标课程, 数据类型)，不做课程对归一化。
type ConsentService struct {
	Repo *repository.ConsentRepository
}

func NewConsentService(repo *repository.ConsentRepository) *ConsentService {
	return &ConsentService{Repo: repo}
}

// IsAccessPermitted 未登记的键视为未授权。
func (s *ConsentService) IsAccessPermitted(ctx context.Context, studentID uint, sourceCourse, targetCourse, dataType string) (bool, error) {
	return s.Repo.Get(ctx, studentID, sourceCourse, targetCourse, dataType)
}

func (s *ConsentService) GrantOrRevoke(ctx context.Context, studentID uint, sourceCourse, targetCourse, dataType string, granted bool) error {
	return s.Repo.Set(ctx, &model.DataSharingConsent{
		StudentID:    studentID,
		SourceCourse: sourceCourse,
		TargetCourse: targetCourse,
		DataType:     dataType,
		Granted:      granted,
	})
}

func (s *ConsentService) ListForStudent(ctx context.Context, studentID uint) ([]model.DataSharingConsent, error) {
	return s.Repo.ListByStudent(ctx, studentID)
}
