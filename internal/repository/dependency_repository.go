package repository

import (
	"context"

	"edu_insight_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DependencyRepository struct {
	DB *gorm.DB
}

func NewDependencyRepository(db *gorm.DB) *DependencyRepository {
	return &DependencyRepository{DB: db}
}

// ListForCourses 返回两端都落在给定课程集合内的依赖边子图。
func (r *DependencyRepository) ListForCourses(ctx context.Context, courseCodes []string) ([]model.KnowledgeDependency, error) {
	if len(courseCodes) == 0 {
		return nil, nil
	}
	var deps []model.KnowledgeDependency
	err := r.DB.WithContext(ctx).
		Where("prerequisite_course IN ? AND dependent_course IN ?", courseCodes, courseCodes).
		Find(&deps).Error
	return deps, err
}

// CourseDependencyLinks 某课程作为后继/先修两个方向的依赖边。
type CourseDependencyLinks struct {
	Prerequisites []model.KnowledgeDependency `json:"prerequisites"` // 本课程依赖的
	Dependents    []model.KnowledgeDependency `json:"dependents"`    // 依赖本课程的
}

func (r *DependencyRepository) GetCourseDependencies(ctx context.Context, courseCode string) (*CourseDependencyLinks, error) {
	links := &CourseDependencyLinks{}
	if err := r.DB.WithContext(ctx).
		Where("dependent_course = ?", courseCode).
		Find(&links.Prerequisites).Error; err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).
		Where("prerequisite_course = ?", courseCode).
		Find(&links.Dependents).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// Upsert 按四元组唯一键写入依赖边；已存在时更新统计字段。
func (r *DependencyRepository) Upsert(ctx context.Context, dep *model.KnowledgeDependency) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "prerequisite_course"},
			{Name: "prerequisite_concept"},
			{Name: "dependent_course"},
			{Name: "dependent_concept"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"strength", "validation_score", "correlation", "sample_size"}),
	}).Create(dep).Error
}

func (r *DependencyRepository) CreateTransferOpportunity(ctx context.Context, op *model.KnowledgeTransferOpportunity) error {
	return r.DB.WithContext(ctx).Create(op).Error
}

// ListConceptRelations 返回人工维护的概念相关表，键为概念、值为相关概念集合。
func (r *DependencyRepository) ListConceptRelations(ctx context.Context) (map[string][]string, error) {
	var relations []model.ConceptRelation
	if err := r.DB.WithContext(ctx).Find(&relations).Error; err != nil {
		return nil, err
	}

	table := make(map[string][]string, len(relations)*2)
	for _, rel := range relations {
		table[rel.ConceptA] = append(table[rel.ConceptA], rel.ConceptB)
		table[rel.ConceptB] = append(table[rel.ConceptB], rel.ConceptA)
	}
	return table, nil
}

// GetCourse 课程目录查询（方向推断需要课程编号与标题标签）。
func (r *DependencyRepository) GetCourse(ctx context.Context, courseCode string) (*model.Course, error) {
	var course model.Course
	err := r.DB.WithContext(ctx).Where("code = ?", courseCode).First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}
