package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"RescueHub/internal/models"
	"RescueHub/pkg/cache"
	"RescueHub/pkg/metrics"

	"gorm.io/gorm"
)

// Candidate 匹配引擎产出的候选：帮助者及其评分依据
type Candidate struct {
	Helper         models.User `json:"helper"`
	DistanceMeters float64     `json:"distanceMeters"`
	SkillOverlap   int         `json:"skillOverlap"`
}

// Config 匹配配置
type Config struct {
	// SkillInference 脆弱性标签/等级 → 所需技能
	SkillInference map[string]string
	// DefaultRadiusMeters 帮助者未设活动范围时的兜底半径
	DefaultRadiusMeters float64
	// CacheTTL 候选列表缓存时间，0 关闭。位置本就允许滞后，缓存只是放大同一取舍。
	CacheTTL time.Duration
}

// Engine 按距离与技能为案件筛选候选帮助者。
// 读取位置与技能时不加锁：算在过期位置上的候选是可接受的。
type Engine struct {
	db      *gorm.DB
	cfg     Config
	cache   cache.Cache
	metrics *metrics.Metrics
}

// New 创建匹配引擎，cache 与 m 可为 nil
func New(db *gorm.DB, cfg Config, c cache.Cache, m *metrics.Metrics) *Engine {
	if cfg.DefaultRadiusMeters <= 0 {
		cfg.DefaultRadiusMeters = 10000
	}
	return &Engine{db: db, cfg: cfg, cache: c, metrics: m}
}

// RequiredSkills 从紧急程度/危险等级/脆弱性标签推断所需技能。
// 全部字段都不携带信息时返回空集：任何在范围内的帮助者均可（策略选择）。
func (e *Engine) RequiredSkills(c *models.Case) models.StringSet {
	var required models.StringSet
	add := func(key string) {
		if skill, ok := e.cfg.SkillInference[key]; ok && !required.Contains(skill) {
			required = append(required, skill)
		}
	}
	for _, tag := range c.Vulnerability {
		add(tag)
	}
	add(string(c.Urgency))
	add(string(c.DangerLevel))
	return required
}

// FindCandidates 返回按 (距离升序, 技能交集降序, ID升序) 排列的候选列表。
// 无人符合时返回空列表而非错误：无匹配是可轮询的正常状态。
func (e *Engine) FindCandidates(ctx context.Context, c *models.Case) ([]Candidate, error) {
	start := time.Now()

	cacheKey := fmt.Sprintf("candidates:%d", c.ID)
	if e.cache != nil && e.cfg.CacheTTL > 0 {
		if v, ok := e.cache.Get(ctx, cacheKey); ok {
			if cached, ok := v.([]Candidate); ok {
				return cached, nil
			}
		}
	}

	helpers, err := models.ListHelpers(e.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	required := e.RequiredSkills(c)
	candidates := make([]Candidate, 0, len(helpers))
	for i := range helpers {
		h := &helpers[i]

		// 绝不把案件的求助者推荐为它的帮助者
		if c.CallerUserID != nil && *c.CallerUserID == h.ID {
			continue
		}

		if len(required) > 0 && h.Skills.Overlap(required) == 0 {
			continue
		}

		dist := Distance(h.Latitude, h.Longitude, c.Latitude, c.Longitude)
		maxRange := e.cfg.DefaultRadiusMeters
		if h.MaxRangeMeters != nil {
			maxRange = *h.MaxRangeMeters
		}
		if dist > maxRange {
			continue
		}

		candidates = append(candidates, Candidate{
			Helper:         *h,
			DistanceMeters: dist,
			SkillOverlap:   h.Skills.Overlap(required),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceMeters != candidates[j].DistanceMeters {
			return candidates[i].DistanceMeters < candidates[j].DistanceMeters
		}
		if candidates[i].SkillOverlap != candidates[j].SkillOverlap {
			return candidates[i].SkillOverlap > candidates[j].SkillOverlap
		}
		return candidates[i].Helper.ID < candidates[j].Helper.ID
	})

	if e.cache != nil && e.cfg.CacheTTL > 0 {
		_ = e.cache.Set(ctx, cacheKey, candidates, e.cfg.CacheTTL)
	}
	if e.metrics != nil {
		e.metrics.RecordMatching(time.Since(start), len(candidates))
	}
	return candidates, nil
}

// Eligible 服务端复核单个帮助者是否仍符合指派条件，
// 用于关闭匹配之后技能/范围被并发修改的竞态窗口。
func (e *Engine) Eligible(c *models.Case, h *models.User) (float64, bool) {
	if !h.IsHelper() {
		return 0, false
	}
	if c.CallerUserID != nil && *c.CallerUserID == h.ID {
		return 0, false
	}
	required := e.RequiredSkills(c)
	if len(required) > 0 && h.Skills.Overlap(required) == 0 {
		return 0, false
	}
	dist := Distance(h.Latitude, h.Longitude, c.Latitude, c.Longitude)
	maxRange := e.cfg.DefaultRadiusMeters
	if h.MaxRangeMeters != nil {
		maxRange = *h.MaxRangeMeters
	}
	return dist, dist <= maxRange
}
