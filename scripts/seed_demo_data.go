// 演示数据灌入脚本
//
// 生成一批学生、两门有先修关系的课程（MATH101 -> PHYS101）、
// 相关的概念掌握度与测评历史，以及全量的数据共享许可，
// 用于本地联调依赖发现和缺口分析接口。
//
// 用法: go run scripts/seed_demo_data.go

package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/pkg/database"
	"edu_insight_backend/pkg/logger"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

const (
	studentCount = 30
	mathCourse   = "MATH101"
	physCourse   = "PHYS101"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)

	instructor := model.User{
		Name:     "Demo Instructor",
		Email:    "instructor@example.com",
		Password: string(hashed),
		Role:     model.Instructor,
	}
	if err := db.Where("email = ?", instructor.Email).FirstOrCreate(&instructor).Error; err != nil {
		log.Fatalf("创建教师失败: %v", err)
	}

	courses := []model.Course{
		{Code: mathCourse, Title: "College Algebra", Subject: "math", Number: 101, InstructorID: instructor.ID},
		{Code: physCourse, Title: "Introductory Mechanics", Subject: "physics", Number: 101, InstructorID: instructor.ID},
	}
	for i := range courses {
		if err := db.Where("code = ?", courses[i].Code).FirstOrCreate(&courses[i]).Error; err != nil {
			log.Fatalf("创建课程失败: %v", err)
		}
	}

	now := time.Now()
	for i := 0; i < studentCount; i++ {
		student := model.User{
			Name:     fmt.Sprintf("Demo Student %02d", i+1),
			Email:    fmt.Sprintf("student%02d@example.com", i+1),
			Password: string(hashed),
			Role:     model.Student,
		}
		if err := db.Where("email = ?", student.Email).FirstOrCreate(&student).Error; err != nil {
			log.Fatalf("创建学生失败: %v", err)
		}

		// 数学基础水平决定后续物理表现，制造可被发现的相关性
		algebraSkill := 0.3 + rng.Float64()*0.65
		physSkill := clamp(algebraSkill*0.8+rng.NormFloat64()*0.05, 0.05, 1)

		seedCourseData(db, rng, student.ID, mathCourse, "algebra", algebraSkill, now.AddDate(0, -3, 0))
		seedCourseData(db, rng, student.ID, physCourse, "kinematics", physSkill, now.AddDate(0, 0, -20))

		db.Where("student_id = ?", student.ID).FirstOrCreate(&model.EngagementStat{
			StudentID:           student.ID,
			LoginsPerWeek:       2 + rng.Float64()*4,
			SubmissionRate:      0.5 + rng.Float64()*0.5,
			ResourceUtilization: rng.Float64(),
			AvgSessionMinutes:   20 + rng.Float64()*40,
			WeeklyStudyMinutes:  120 + rng.Float64()*240,
		})

		// 双向许可，方便所有分析路径跑通
		for _, pair := range [][2]string{{mathCourse, physCourse}, {physCourse, mathCourse}} {
			consent := model.DataSharingConsent{
				StudentID:    student.ID,
				SourceCourse: pair[0],
				TargetCourse: pair[1],
				DataType:     "performance",
				Granted:      true,
			}
			db.Where("student_id = ? AND source_course = ? AND target_course = ? AND data_type = ?",
				student.ID, pair[0], pair[1], "performance").FirstOrCreate(&consent)
		}
	}

	log.Println("演示数据灌入完成")
}

// seedCourseData 写入选课记录、概念掌握度和围绕基础水平波动的测评历史。
func seedCourseData(db *gorm.DB, rng *rand.Rand, studentID uint, courseCode, concept string, skill float64, enrolledAt time.Time) {
	enrollment := model.CourseEnrollment{
		StudentID:  studentID,
		CourseCode: courseCode,
		EnrolledAt: enrolledAt,
		Active:     true,
	}
	db.Where("student_id = ? AND course_code = ?", studentID, courseCode).FirstOrCreate(&enrollment)

	lastAssessed := time.Now().AddDate(0, 0, -rng.Intn(10))
	mastery := model.ConceptMastery{
		StudentID:      studentID,
		CourseCode:     courseCode,
		Concept:        concept,
		MasteryLevel:   skill,
		Confidence:     0.6 + rng.Float64()*0.4,
		Struggling:     skill < 0.4,
		ReviewCount:    rng.Intn(4),
		LastAssessedAt: &lastAssessed,
	}
	db.Where("student_id = ? AND course_code = ? AND concept = ?", studentID, courseCode, concept).FirstOrCreate(&mastery)

	for k := 0; k < 12; k++ {
		score := clamp(skill+rng.NormFloat64()*0.08, 0, 1)
		db.Create(&model.AssessmentRecord{
			StudentID:        studentID,
			CourseCode:       courseCode,
			Concept:          concept,
			RecordedAt:       enrolledAt.AddDate(0, 0, k*5),
			Score:            score,
			Kind:             "quiz",
			TimeSpentMinutes: 10 + rng.Intn(30),
		})
	}

	if skill < 0.4 {
		db.Create(&model.StruggleIndicator{
			StudentID:        studentID,
			CourseCode:       courseCode,
			Type:             "repeated_low_scores",
			Severity:         0.6,
			AffectedConcepts: fmt.Sprintf(`["%s"]`, concept),
			DetectedAt:       time.Now().AddDate(0, 0, -5),
			Resolved:         false,
		})
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
