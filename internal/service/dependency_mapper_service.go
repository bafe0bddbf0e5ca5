package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/model"
	"edu_insight_backend/internal/util"
	"edu_insight_backend/pkg/logger"
	"edu_insight_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// DependencyMapperService 从跨课程表现数据中推断有向的先修依赖关系。
type DependencyMapperService struct {
	tunables
	Performance PerformanceProvider
	Deps        DependencyStore
	Consent     ConsentGate
	Similarity  ConceptSimilarity
}

func NewDependencyMapperService(
	performance PerformanceProvider,
	deps DependencyStore,
	consent ConsentGate,
	similarity ConceptSimilarity,
	cfg config.AnalyticsConfig,
) *DependencyMapperService {
	s := &DependencyMapperService{
		Performance: performance,
		Deps:        deps,
		Consent:     consent,
		Similarity:  similarity,
	}
	s.SetConfig(cfg)
	return s
}

// conceptSeries 某概念按学生对齐的掌握度序列。
type conceptSeries struct {
	studentIDs []uint
	values     []float64
}

// AnalyzeCrossCoursePatterns 对至少两门课程的表现数据做候选配对、
// 相关性分析、方向校验与可选的认知画像增强，产出依赖边。
// 单个概念对的计算失败按对隔离，不中断整体分析。
func (s *DependencyMapperService) AnalyzeCrossCoursePatterns(
	ctx context.Context,
	performanceData []model.CoursePerformanceData,
	cognitiveProfiles []model.LearnerCognitiveProfile,
) (deps []model.KnowledgeDependency, err error) {
	defer func() {
		if r := recover(); r != nil {
			deps = nil
			err = util.NewAppError(util.KindCorrelationFailed, "cross-course pattern analysis panicked", fmt.Errorf("%v", r))
		}
	}()

	cfg := s.Config()

	byCourse := make(map[string][]model.CoursePerformanceData)
	for _, pd := range performanceData {
		byCourse[pd.CourseCode] = append(byCourse[pd.CourseCode], pd)
	}
	if len(byCourse) < 2 {
		return nil, util.NewAppError(util.KindInvalidCourseSequence,
			fmt.Sprintf("cross-course analysis requires at least two courses, got %d", len(byCourse)), nil)
	}

	courses := make([]string, 0, len(byCourse))
	for code := range byCourse {
		courses = append(courses, code)
	}
	sort.Strings(courses)
	if cfg.MaxCoursesAnalyzed > 0 && len(courses) > cfg.MaxCoursesAnalyzed {
		courses = courses[:cfg.MaxCoursesAnalyzed]
	}

	profileByStudent := make(map[uint]model.LearnerCognitiveProfile, len(cognitiveProfiles))
	for _, p := range cognitiveProfiles {
		profileByStudent[p.StudentID] = p
	}

	pairsAnalyzed := 0
	for i := 0; i < len(courses); i++ {
		for j := i + 1; j < len(courses); j++ {
			courseA, courseB := courses[i], courses[j]

			seriesA := buildConceptSeries(byCourse[courseA])
			seriesB := buildConceptSeries(byCourse[courseB])

			for conceptA, sa := range seriesA {
				for conceptB, sb := range seriesB {
					if cfg.MaxConceptPairs > 0 && pairsAnalyzed >= cfg.MaxConceptPairs {
						logger.Log.Warn("concept pair budget exhausted",
							zap.Int("maxConceptPairs", cfg.MaxConceptPairs))
						goto done
					}
					pairsAnalyzed++

					dep, pairErr := s.analyzeConceptPair(ctx, cfg, courseA, conceptA, sa, courseB, conceptB, sb, profileByStudent)
					if pairErr != nil {
						// 单对失败不拖垮整体分析
						logger.Log.Debug("concept pair skipped",
							zap.String("conceptA", conceptA),
							zap.String("conceptB", conceptB),
							zap.Error(pairErr))
						continue
					}
					if dep != nil {
						deps = append(deps, *dep)
					}
				}
			}
		}
	}

done:
	return deps, nil
}

// analyzeConceptPair 步骤 A-D：候选筛选、相关性、方向、认知增强。
// 返回 nil 依赖表示该对未通过筛选（非错误）。
func (s *DependencyMapperService) analyzeConceptPair(
	ctx context.Context,
	cfg config.AnalyticsConfig,
	courseA, conceptA string, sa conceptSeries,
	courseB, conceptB string, sb conceptSeries,
	profiles map[uint]model.LearnerCognitiveProfile,
) (*model.KnowledgeDependency, error) {
	// 步骤 A：词元重叠 + 人工相关表
	similarity, err := s.Similarity.Score(ctx, conceptA, conceptB)
	if err != nil {
		return nil, err
	}
	if similarity < cfg.SimilarityThreshold {
		related, err := s.Similarity.Related(ctx, conceptA, conceptB)
		if err != nil {
			return nil, err
		}
		if !related {
			return nil, nil
		}
	}

	// 步骤 B：同一批学生的时间对齐序列做皮尔逊相关
	xs, ys, contributors, err := s.alignedSeries(ctx, courseA, courseB, sa, sb)
	if err != nil {
		return nil, err
	}
	n := len(xs)
	if n < cfg.MinSampleSize {
		return nil, nil
	}

	r := util.Pearson(xs, ys)
	if math.Abs(r) < cfg.CorrelationThreshold {
		return nil, nil
	}
	validation := util.CorrelationConfidence(r, n)

	// 步骤 C：时序先后推断，只保留 leads；concurrent 在强相关时降权保留
	direction := s.classifyDirection(ctx, courseA, courseB)
	prereqCourse, prereqConcept := courseA, conceptA
	depCourse, depConcept := courseB, conceptB
	switch direction {
	case model.DirectionFollows:
		prereqCourse, prereqConcept = courseB, conceptB
		depCourse, depConcept = courseA, conceptA
	case model.DirectionConcurrent:
		if math.Abs(r) <= 0.7 {
			return nil, nil
		}
		validation *= 0.8
	}

	// 步骤 D：认知画像一致性增强（可选信号）
	adjusted := r
	if len(profiles) > 0 {
		consistency := clusterConsistency(xs, ys, contributors, profiles)
		if consistency >= 0 {
			adjusted = r * (0.8 + 0.2*consistency)
			validation = util.Clamp01(validation * (1 + 0.2*consistency))
		}
	}

	dep := &model.KnowledgeDependency{
		PrerequisiteCourse:  prereqCourse,
		PrerequisiteConcept: prereqConcept,
		DependentCourse:     depCourse,
		DependentConcept:    depConcept,
		Strength:            util.Clamp01(math.Abs(adjusted)),
		ValidationScore:     util.Clamp01(validation),
		Correlation:         r,
		SampleSize:          n,
	}

	// 步骤 E：结构校验
	if dep.IsSelfLoop() || dep.PrerequisiteConcept == "" || dep.DependentConcept == "" {
		return nil, nil
	}
	if dep.Strength < cfg.MinDependencyStrength {
		return nil, nil
	}
	return dep, nil
}

// alignedSeries 取两门课程都有该概念、且双向许可通过的学生，
// 构造配对的掌握度序列。许可未通过的学生被静默排除。
func (s *DependencyMapperService) alignedSeries(
	ctx context.Context,
	courseA, courseB string,
	sa, sb conceptSeries,
) (xs, ys []float64, contributors []uint, err error) {
	valueB := make(map[uint]float64, len(sb.studentIDs))
	for i, id := range sb.studentIDs {
		valueB[id] = sb.values[i]
	}

	for i, id := range sa.studentIDs {
		vb, ok := valueB[id]
		if !ok {
			continue
		}

		permitted, gateErr := s.pairPermitted(ctx, id, courseA, courseB)
		if gateErr != nil {
			return nil, nil, nil, gateErr
		}
		if !permitted {
			continue
		}

		xs = append(xs, sa.values[i])
		ys = append(ys, vb)
		contributors = append(contributors, id)
	}
	return xs, ys, contributors, nil
}

// pairPermitted 联合分析会触碰两门课程的数据，要求两个方向的许可都成立。
func (s *DependencyMapperService) pairPermitted(ctx context.Context, studentID uint, courseA, courseB string) (bool, error) {
	ab, err := s.Consent.IsAccessPermitted(ctx, studentID, courseA, courseB, consentDataTypePerformance)
	if err != nil {
		return false, util.NewAppError(util.KindPrivacyViolation, "consent lookup failed", err)
	}
	if !ab {
		return false, nil
	}
	ba, err := s.Consent.IsAccessPermitted(ctx, studentID, courseB, courseA, consentDataTypePerformance)
	if err != nil {
		return false, util.NewAppError(util.KindPrivacyViolation, "consent lookup failed", err)
	}
	return ba, nil
}

var courseNumberPattern = regexp.MustCompile(`(\d+)`)

var (
	earlyCourseTags    = []string{"intro", "basic", "fundamental", "elementary"}
	advancedCourseTags = []string{"advanced", "differential", "integral", "graduate"}
)

// classifyDirection 时序先后：课程编号优先，词法标签兜底，否则视为并行。
func (s *DependencyMapperService) classifyDirection(ctx context.Context, courseA, courseB string) model.DependencyDirection {
	numA, titleA := s.courseMeta(ctx, courseA)
	numB, titleB := s.courseMeta(ctx, courseB)

	if numA > 0 && numB > 0 && numA != numB {
		if numA < numB {
			return model.DirectionLeads
		}
		return model.DirectionFollows
	}

	earlyA, advancedA := hasTags(titleA, earlyCourseTags), hasTags(titleA, advancedCourseTags)
	earlyB, advancedB := hasTags(titleB, earlyCourseTags), hasTags(titleB, advancedCourseTags)
	if earlyA && advancedB {
		return model.DirectionLeads
	}
	if advancedA && earlyB {
		return model.DirectionFollows
	}

	return model.DirectionConcurrent
}

// courseMeta 课程编号与标题；目录缺失时从课程代码解析数字。
func (s *DependencyMapperService) courseMeta(ctx context.Context, courseCode string) (int, string) {
	if s.Deps != nil {
		if course, err := s.Deps.GetCourse(ctx, courseCode); err == nil {
			title := strings.ToLower(course.Title)
			if course.Number > 0 {
				return course.Number, title
			}
			if m := courseNumberPattern.FindString(course.Code); m != "" {
				num := 0
				fmt.Sscanf(m, "%d", &num)
				return num, title
			}
			return 0, title
		}
	}
	if m := courseNumberPattern.FindString(courseCode); m != "" {
		num := 0
		fmt.Sscanf(m, "%d", &num)
		return num, strings.ToLower(courseCode)
	}
	return 0, strings.ToLower(courseCode)
}

func hasTags(title string, tags []string) bool {
	for _, t := range tags {
		if strings.Contains(title, t) {
			return true
		}
	}
	return false
}

// clusterConsistency 按学习风格聚类，衡量相关性跨簇的一致性。
// 不足两个有效簇时返回 -1（不做增强）。
func clusterConsistency(xs, ys []float64, contributors []uint, profiles map[uint]model.LearnerCognitiveProfile) float64 {
	type cluster struct{ xs, ys []float64 }
	clusters := make(map[string]*cluster)
	for i, id := range contributors {
		p, ok := profiles[id]
		if !ok || p.LearningStyle == "" {
			continue
		}
		c := clusters[p.LearningStyle]
		if c == nil {
			c = &cluster{}
			clusters[p.LearningStyle] = c
		}
		c.xs = append(c.xs, xs[i])
		c.ys = append(c.ys, ys[i])
	}

	var clusterRs []float64
	for _, c := range clusters {
		if len(c.xs) < 3 {
			continue
		}
		clusterRs = append(clusterRs, util.Pearson(c.xs, c.ys))
	}
	if len(clusterRs) < 2 {
		return -1
	}

	// 跨簇标准差越小越一致
	return util.Clamp01(1 - 2*util.StdDev(clusterRs))
}

// buildConceptSeries 每个概念按学生展开的掌握度序列。
func buildConceptSeries(cohort []model.CoursePerformanceData) map[string]conceptSeries {
	out := make(map[string]conceptSeries)
	for _, pd := range cohort {
		for _, cp := range pd.Concepts {
			series := out[cp.Concept]
			series.studentIDs = append(series.studentIDs, pd.StudentID)
			series.values = append(series.values, cp.MasteryLevel)
			out[cp.Concept] = series
		}
	}
	return out
}

// DiscoverAndPersist 批量拉取课程群体数据、推断依赖并落库。
func (s *DependencyMapperService) DiscoverAndPersist(ctx context.Context, courseCodes []string) ([]model.KnowledgeDependency, error) {
	if len(courseCodes) < 2 {
		return nil, util.NewAppError(util.KindInvalidCourseSequence,
			"dependency discovery requires at least two courses", nil)
	}

	var performanceData []model.CoursePerformanceData
	studentSet := make(map[uint]bool)
	for _, code := range courseCodes {
		cohort, err := s.Performance.GetCohortPerformance(ctx, code)
		if err != nil {
			return nil, util.NewAppError(util.KindInsufficientData,
				fmt.Sprintf("failed to load cohort performance for course %s", code), err)
		}
		performanceData = append(performanceData, cohort...)
		for _, pd := range cohort {
			studentSet[pd.StudentID] = true
		}
	}

	studentIDs := make([]uint, 0, len(studentSet))
	for id := range studentSet {
		studentIDs = append(studentIDs, id)
	}
	profiles, err := s.Performance.GetCognitiveProfiles(ctx, studentIDs)
	if err != nil {
		// 认知画像是可选增强，取不到就不用
		logger.Log.Warn("cognitive profiles unavailable", zap.Error(err))
		profiles = nil
	}

	discovered, err := s.AnalyzeCrossCoursePatterns(ctx, performanceData, profiles)
	if err != nil {
		return nil, err
	}

	deps, rejected := s.ValidateDependencies(discovered)
	if len(rejected) > 0 {
		logger.Log.Info("dependencies rejected by validation", zap.Int("count", len(rejected)))
	}

	for i := range deps {
		if err := s.Deps.Upsert(ctx, &deps[i]); err != nil {
			return nil, err
		}
		monitoring.DependenciesDiscovered.Inc()
	}
	return deps, nil
}

// UpdateDependencyStrengths 用新证据对既有依赖做指数平滑（α 偏向新数据），
// 而非直接覆盖；样本量累计。对重复/并发的部分更新是安全的。
func (s *DependencyMapperService) UpdateDependencyStrengths(
	ctx context.Context,
	existing []model.KnowledgeDependency,
	newPerformanceData []model.CoursePerformanceData,
) ([]model.KnowledgeDependency, error) {
	cfg := s.Config()
	alpha := cfg.StrengthSmoothingAlpha

	byCourse := make(map[string][]model.CoursePerformanceData)
	for _, pd := range newPerformanceData {
		byCourse[pd.CourseCode] = append(byCourse[pd.CourseCode], pd)
	}

	updated := make([]model.KnowledgeDependency, 0, len(existing))
	for _, dep := range existing {
		sa := buildConceptSeries(byCourse[dep.PrerequisiteCourse])[dep.PrerequisiteConcept]
		sb := buildConceptSeries(byCourse[dep.DependentCourse])[dep.DependentConcept]

		xs, ys, _, err := s.alignedSeries(ctx, dep.PrerequisiteCourse, dep.DependentCourse, sa, sb)
		if err != nil {
			return nil, err
		}
		if len(xs) < 2 {
			updated = append(updated, dep)
			continue
		}

		rNew := util.Pearson(xs, ys)
		dep.Correlation = alpha*rNew + (1-alpha)*dep.Correlation
		dep.Strength = util.Clamp01(alpha*math.Abs(rNew) + (1-alpha)*dep.Strength)
		dep.SampleSize += len(xs)
		dep.ValidationScore = util.CorrelationConfidence(dep.Correlation, dep.SampleSize)
		updated = append(updated, dep)
	}
	return updated, nil
}

// ValidateDependencies 按业务规则切分有效/无效：
// 自环、强度过低、验证分不足的一律拒绝。
func (s *DependencyMapperService) ValidateDependencies(deps []model.KnowledgeDependency) (valid, invalid []model.KnowledgeDependency) {
	for _, dep := range deps {
		if dep.IsSelfLoop() || dep.Strength < 0.1 || dep.ValidationScore < 0.5 ||
			dep.PrerequisiteConcept == "" || dep.DependentConcept == "" {
			invalid = append(invalid, dep)
			continue
		}
		valid = append(valid, dep)
	}
	return valid, invalid
}
