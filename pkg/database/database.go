package database

import (
	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.CourseEnrollment{},
		&model.EngagementStat{},
		&model.ConceptMastery{},
		&model.AssessmentRecord{},
		&model.StruggleIndicator{},
		&model.LearnerCognitiveProfile{},
		&model.KnowledgeDependency{},
		&model.KnowledgeTransferOpportunity{},
		&model.ConceptRelation{},
		&model.DataSharingConsent{},
		&model.CrossCourseGapAlert{},
		&model.AlertFeedback{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认的概念相关表：分类体系服务就位前的人工整理种子。
	// 词法相似度命中不了的跨学科关联靠它兜底。
	var relCount int64
	db.Model(&model.ConceptRelation{}).Count(&relCount)
	if relCount == 0 {
		defaultRelations := []model.ConceptRelation{
			{ConceptA: "algebra", ConceptB: "kinematics"},
			{ConceptA: "algebra", ConceptB: "stoichiometry"},
			{ConceptA: "algebra", ConceptB: "circuit analysis"},
			{ConceptA: "derivatives", ConceptB: "velocity"},
			{ConceptA: "derivatives", ConceptB: "rate of change"},
			{ConceptA: "integrals", ConceptB: "work and energy"},
			{ConceptA: "trigonometry", ConceptB: "wave motion"},
			{ConceptA: "trigonometry", ConceptB: "vectors"},
			{ConceptA: "vectors", ConceptB: "forces"},
			{ConceptA: "probability", ConceptB: "statistical mechanics"},
			{ConceptA: "probability", ConceptB: "genetics"},
			{ConceptA: "logarithms", ConceptB: "ph calculations"},
			{ConceptA: "functions", ConceptB: "programming basics"},
			{ConceptA: "recursion", ConceptB: "mathematical induction"},
			{ConceptA: "matrices", ConceptB: "linear transformations"},
		}
		for _, r := range defaultRelations {
			db.Create(&r)
		}
	}

	return db, nil
}
