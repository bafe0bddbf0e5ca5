package repository

import (
	"context"

	"edu_insight_backend/internal/model"

	"gorm.io/gorm"
)

type ConsentRepository struct {
	DB *gorm.DB
}

func NewConsentRepository(db *gorm.DB) *ConsentRepository {
	return &ConsentRepository{DB: db}
}

// Get 查询定向许可；无记录视为未授权，不是错误。
func (r *ConsentRepository) Get(ctx context.Context, studentID uint, sourceCourse, targetCourse, dataType string) (bool, error) {
	var consent model.DataSharingConsent
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND source_course = ? AND target_course = ? AND data_type = ?",
			studentID, sourceCourse, targetCourse, dataType).
		First(&consent).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return consent.Granted, nil
}

func (r *ConsentRepository) Set(ctx context.Context, consent *model.DataSharingConsent) error {
	var existing model.DataSharingConsent
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND source_course = ? AND target_course = ? AND data_type = ?",
			consent.StudentID, consent.SourceCourse, consent.TargetCourse, consent.DataType).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.DB.WithContext(ctx).Create(consent).Error
	}
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Model(&existing).Update("granted", consent.Granted).Error
}

func (r *ConsentRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.DataSharingConsent, error) {
	var consents []model.DataSharingConsent
	err := r.DB.WithContext(ctx).Where("student_id = ?", studentID).Find(&consents).Error
	return consents, err
}
