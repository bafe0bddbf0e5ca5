package repository

import (
	"edu_insight_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).
		Update("last_seen", gorm.Expr("CURRENT_TIMESTAMP(3)")).Error
}

// ListStudentIDsByCourse 某课程当前在读学生，批量预警扫描用。
func (r *UserRepository) ListStudentIDsByCourse(courseCode string) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.CourseEnrollment{}).
		Where("course_code = ? AND active = ?", courseCode, true).
		Pluck("student_id", &ids).Error
	return ids, err
}
