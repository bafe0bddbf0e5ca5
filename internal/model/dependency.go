package model

// DependencyDirection 依赖方向的时序推断结果。
type DependencyDirection string

const (
	DirectionLeads      DependencyDirection = "leads"
	DirectionFollows    DependencyDirection = "follows"
	DirectionConcurrent DependencyDirection = "concurrent"
)

// KnowledgeDependency 有向依赖边：先修(课程,概念) -> 后继(课程,概念)。
// 不变式：禁止自环；Strength 低于配置的最小值不落库。
// 更新采用指数平滑而非覆盖，因而对并发的部分更新是安全的。
type KnowledgeDependency struct {
	BaseModel
	PrerequisiteCourse  string  `gorm:"size:50;index:idx_dep_edge,unique;not null" json:"prerequisiteCourse"`
	PrerequisiteConcept string  `gorm:"size:200;index:idx_dep_edge,unique;not null" json:"prerequisiteConcept"`
	DependentCourse     string  `gorm:"size:50;index:idx_dep_edge,unique;not null" json:"dependentCourse"`
	DependentConcept    string  `gorm:"size:200;index:idx_dep_edge,unique;not null" json:"dependentConcept"`
	Strength            float64 `gorm:"type:double" json:"strength"`        // 0-1，相关性推导
	ValidationScore     float64 `gorm:"type:double" json:"validationScore"` // 0-1
	Correlation         float64 `gorm:"type:double" json:"correlation"`     // 原始相关系数
	SampleSize          int     `gorm:"default:0" json:"sampleSize"`
}

func (KnowledgeDependency) TableName() string {
	return "knowledge_dependencies"
}

// IsSelfLoop 先修与后继完全相同。
func (d *KnowledgeDependency) IsSelfLoop() bool {
	return d.PrerequisiteCourse == d.DependentCourse && d.PrerequisiteConcept == d.DependentConcept
}

// KnowledgeTransferOpportunity 正迁移建议：
// 学生在先修课程概念上的强项可以迁移到后继课程。
type KnowledgeTransferOpportunity struct {
	BaseModel
	StudentID     uint    `gorm:"index" json:"studentId"`
	SourceCourse  string  `gorm:"size:50" json:"sourceCourse"`
	SourceConcept string  `gorm:"size:200" json:"sourceConcept"`
	TargetCourse  string  `gorm:"size:50" json:"targetCourse"`
	TargetConcept string  `gorm:"size:200" json:"targetConcept"`
	Strength      float64 `gorm:"type:double" json:"strength"`
	Description   string  `gorm:"type:text" json:"description"`
}

func (KnowledgeTransferOpportunity) TableName() string {
	return "knowledge_transfer_opportunities"
}

// ConceptRelation 人工维护的概念相关表，是真实分类体系/嵌入服务的简化替身。
type ConceptRelation struct {
	BaseModel
	ConceptA string `gorm:"size:200;index:idx_relation_pair,unique;not null" json:"conceptA"`
	ConceptB string `gorm:"size:200;index:idx_relation_pair,unique;not null" json:"conceptB"`
}

func (ConceptRelation) TableName() string {
	return "concept_relations"
}

// DataSharingConsent 跨课程数据访问的布尔许可，按
// (学生, 源课程, 目标课程, 数据类型) 定向键控。
type DataSharingConsent struct {
	BaseModel
	StudentID    uint   `gorm:"index:idx_consent_key,unique;not null" json:"studentId"`
	SourceCourse string `gorm:"size:50;index:idx_consent_key,unique;not null" json:"sourceCourse"`
	TargetCourse string `gorm:"size:50;index:idx_consent_key,unique;not null" json:"targetCourse"`
	DataType     string `gorm:"size:50;index:idx_consent_key,unique;not null" json:"dataType"`
	Granted      bool   `gorm:"default:false" json:"granted"`
}

func (DataSharingConsent) TableName() string {
	return "data_sharing_consents"
}
