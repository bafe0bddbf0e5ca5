package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edu_insight_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const alertListCacheTTL = 5 * time.Minute

type AlertRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewAlertRepository(db *gorm.DB, rdb *redis.Client) *AlertRepository {
	return &AlertRepository{DB: db, Redis: rdb}
}

func (r *AlertRepository) Create(ctx context.Context, alert *model.CrossCourseGapAlert) error {
	if err := r.DB.WithContext(ctx).Create(alert).Error; err != nil {
		return err
	}
	r.InvalidateListing(ctx, alert.InstructorID)
	return nil
}

func (r *AlertRepository) FindByID(ctx context.Context, id string) (*model.CrossCourseGapAlert, error) {
	var alert model.CrossCourseGapAlert
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *AlertRepository) Save(ctx context.Context, alert *model.CrossCourseGapAlert) error {
	if err := r.DB.WithContext(ctx).Save(alert).Error; err != nil {
		return err
	}
	r.InvalidateListing(ctx, alert.InstructorID)
	return nil
}

// AlertListFilter 教师预警列表的分页与筛选参数。
type AlertListFilter struct {
	Status   string
	Priority string
	Page     int
	Limit    int
}

type AlertPage struct {
	Alerts []model.CrossCourseGapAlert `json:"alerts"`
	Total  int64                       `json:"total"`
}

func alertListKey(instructorID uint, f AlertListFilter) string {
	return fmt.Sprintf("alerts:list:%d:%s:%s:%d:%d", instructorID, f.Status, f.Priority, f.Page, f.Limit)
}

// ListByInstructor 分页列表，Redis 缓存 5 分钟，状态流转时整体失效。
func (r *AlertRepository) ListByInstructor(ctx context.Context, instructorID uint, f AlertListFilter) (*AlertPage, error) {
	key := alertListKey(instructorID, f)
	if r.Redis != nil {
		if cached, err := r.Redis.Get(ctx, key).Result(); err == nil {
			var page AlertPage
			if json.Unmarshal([]byte(cached), &page) == nil {
				return &page, nil
			}
		}
	}

	query := r.DB.WithContext(ctx).Model(&model.CrossCourseGapAlert{}).
		Where("instructor_id = ?", instructorID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		query = query.Where("priority = ?", f.Priority)
	}

	var page AlertPage
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	err := query.Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&page.Alerts).Error
	if err != nil {
		return nil, err
	}

	if r.Redis != nil {
		if data, err := json.Marshal(&page); err == nil {
			r.Redis.Set(ctx, key, data, alertListCacheTTL)
		}
	}
	return &page, nil
}

// InvalidateListing 删除该教师的全部列表缓存。
func (r *AlertRepository) InvalidateListing(ctx context.Context, instructorID uint) {
	if r.Redis == nil {
		return
	}
	pattern := fmt.Sprintf("alerts:list:%d:*", instructorID)
	keys, err := r.Redis.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	r.Redis.Del(ctx, keys...)
}

func (r *AlertRepository) CountByInstructorSince(ctx context.Context, instructorID uint, since time.Time) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.CrossCourseGapAlert{}).
		Where("instructor_id = ? AND created_at >= ?", instructorID, since).
		Count(&count).Error
	return count, err
}

func (r *AlertRepository) CreateFeedback(ctx context.Context, fb *model.AlertFeedback) error {
	return r.DB.WithContext(ctx).Create(fb).Error
}

func (r *AlertRepository) ListFeedbackSince(ctx context.Context, instructorID uint, since time.Time) ([]model.AlertFeedback, error) {
	var feedbacks []model.AlertFeedback
	err := r.DB.WithContext(ctx).
		Where("instructor_id = ? AND created_at >= ?", instructorID, since).
		Find(&feedbacks).Error
	return feedbacks, err
}
