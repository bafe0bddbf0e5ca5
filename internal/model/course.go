package model

import (
	"time"
)

// Course 课程目录项。Code 为对外标识（如 "math101"），
// Number 从 Code 中解析，用于时序先后推断。
type Course struct {
	BaseModel
	Code         string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Title        string `gorm:"size:200;not null" json:"title"`
	Subject      string `gorm:"size:100" json:"subject"`
	Number       int    `gorm:"default:0" json:"number"`
	InstructorID uint   `gorm:"index" json:"instructorId"`
}

func (Course) TableName() string {
	return "courses"
}

type CourseEnrollment struct {
	BaseModel
	StudentID  uint      `gorm:"index:idx_enroll_student_course,unique;not null" json:"studentId"`
	CourseCode string    `gorm:"size:50;index:idx_enroll_student_course,unique;not null" json:"courseCode"`
	EnrolledAt time.Time `json:"enrolledAt"`
	Active     bool      `gorm:"default:true;index" json:"active"`
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}

// EngagementStat 学生级参与度指标，由学习平台侧的埋点汇总而来。
type EngagementStat struct {
	BaseModel
	StudentID           uint    `gorm:"uniqueIndex;not null" json:"studentId"`
	LoginsPerWeek       float64 `gorm:"default:0" json:"loginsPerWeek"`
	SubmissionRate      float64 `gorm:"default:0" json:"submissionRate"`      // 0-1
	ResourceUtilization float64 `gorm:"default:0" json:"resourceUtilization"` // 0-1
	AvgSessionMinutes   float64 `gorm:"default:0" json:"avgSessionMinutes"`
	WeeklyStudyMinutes  float64 `gorm:"default:0" json:"weeklyStudyMinutes"`
}

func (EngagementStat) TableName() string {
	return "engagement_stats"
}
