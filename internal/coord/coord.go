package coord

import (
	"context"
	"fmt"
	"sort"
	"time"

	"RescueHub/internal/channel"
	"RescueHub/internal/ledger"
	"RescueHub/internal/matching"
	"RescueHub/internal/models"
	"RescueHub/internal/timeline"
	"RescueHub/pkg/errors"
	"RescueHub/pkg/llm"
	"RescueHub/pkg/logger"
	"RescueHub/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 指派模式
const (
	AssignSingle    = "single"    // 只指派排序最优的一位
	AssignBroadcast = "broadcast" // 向所有候选广播并发指派
)

// Options 协调器行为参数
type Options struct {
	AssignMode    string
	RematchMinAge time.Duration // open 超过该时长才参与重扫
	StoreRetries  int
	StoreBackoff  time.Duration
	GuideTimeout  time.Duration // 文案生成的异步调用超时
}

// Coordinator 对外的协调门面：案件受理、匹配指派、消息与时间线查询。
// 状态机写入全部经由台账，这里不直接改案件状态。
type Coordinator struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	match   *matching.Engine
	ch      *channel.Channel
	rec     *timeline.Recorder
	gen     llm.TextGenerator // 可为 nil，关闭文案生成
	metrics *metrics.Metrics
	opts    Options
}

// New 创建协调器
func New(db *gorm.DB, l *ledger.Ledger, match *matching.Engine, ch *channel.Channel,
	rec *timeline.Recorder, gen llm.TextGenerator, m *metrics.Metrics, opts Options) *Coordinator {
	if opts.AssignMode == "" {
		opts.AssignMode = AssignSingle
	}
	if opts.StoreRetries <= 0 {
		opts.StoreRetries = 3
	}
	if opts.StoreBackoff <= 0 {
		opts.StoreBackoff = 50 * time.Millisecond
	}
	if opts.GuideTimeout <= 0 {
		opts.GuideTimeout = 20 * time.Second
	}
	return &Coordinator{db: db, ledger: l, match: match, ch: ch, rec: rec, gen: gen, metrics: m, opts: opts}
}

// withRetry 对瞬时存储错误做有限次退避重试，业务错误不重试
func (co *Coordinator) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < co.opts.StoreRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.IsCode(err, errors.CodeStorage) {
			return err
		}
		select {
		case <-time.After(co.opts.StoreBackoff * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CreateEmergency 登记灾情
func (co *Coordinator) CreateEmergency(ctx context.Context, e *models.Emergency) (*models.Emergency, error) {
	if e.Name == "" {
		return nil, errors.InvalidReference("emergency name is required")
	}
	err := co.withRetry(ctx, func() error {
		if _, err := models.CreateEmergency(co.db.WithContext(ctx), e); err != nil {
			return errors.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateCaseGroup 在灾情下建立案件组（地理/情境聚簇）
func (co *Coordinator) CreateCaseGroup(ctx context.Context, g *models.CaseGroup) (*models.CaseGroup, error) {
	if _, err := models.GetEmergency(co.db.WithContext(ctx), g.EmergencyID); err != nil {
		return nil, errors.NotFound("emergency", g.EmergencyID)
	}
	err := co.withRetry(ctx, func() error {
		if _, err := models.CreateCaseGroup(co.db.WithContext(ctx), g); err != nil {
			return errors.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// SubmitCase 受理求助：落库、写 case_created 审计事件，
// 并异步为求助者生成应急指引。不在这里做匹配，指派由
// FindAndAssign 或重扫驱动。
func (co *Coordinator) SubmitCase(ctx context.Context, c *models.Case) (*models.Case, error) {
	if c.Urgency != "" && !c.Urgency.Valid() {
		return nil, errors.InvalidReference("invalid urgency %q", c.Urgency)
	}
	if c.DangerLevel != "" && !c.DangerLevel.Valid() {
		return nil, errors.InvalidReference("invalid danger level %q", c.DangerLevel)
	}
	db := co.db.WithContext(ctx)
	if c.CallerUserID != nil {
		if _, err := models.GetUser(db, *c.CallerUserID); err != nil {
			return nil, errors.NotFound("user", *c.CallerUserID)
		}
	}
	if c.CaseGroupID != nil {
		g, err := models.GetCaseGroup(db, *c.CaseGroupID)
		if err != nil {
			return nil, errors.NotFound("case group", *c.CaseGroupID)
		}
		if c.EmergencyID != nil && *c.EmergencyID != g.EmergencyID {
			return nil, errors.InvalidReference("group %d does not belong to emergency %d", g.ID, *c.EmergencyID)
		}
		c.EmergencyID = &g.EmergencyID
	} else if c.EmergencyID != nil {
		if _, err := models.GetEmergency(db, *c.EmergencyID); err != nil {
			return nil, errors.NotFound("emergency", *c.EmergencyID)
		}
	}

	err := co.withRetry(ctx, func() error {
		return db.Transaction(func(tx *gorm.DB) error {
			if _, err := models.CreateCase(tx, c); err != nil {
				return errors.Storage(err)
			}
			return co.rec.RecordTx(tx, &models.Update{
				CaseID: &c.ID,
				Source: models.SourceSystem,
				Type:   models.UpdateTypeCaseCreated,
				Text:   "Case created: " + c.Description,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if co.metrics != nil {
		co.metrics.RecordCaseCreated()
	}
	co.asyncCallerGuide(c)
	return c, nil
}

// FindAndAssign 为案件搜索候选并按模式指派。
// 无候选时返回空列表，案件保持 open 等待重扫——这不是错误。
// 候选在决策窗口内失格或被抢占时顺延到下一位。
func (co *Coordinator) FindAndAssign(ctx context.Context, caseID uint) ([]*models.Assignment, error) {
	c, err := models.GetCase(co.db.WithContext(ctx), caseID)
	if err != nil {
		return nil, errors.NotFound("case", caseID)
	}
	if c.Status.Terminal() {
		return nil, errors.Conflict("cannot assign case %d in state %s", c.ID, c.Status)
	}
	candidates, err := co.match.FindCandidates(ctx, c)
	if err != nil {
		return nil, errors.Storage(err)
	}

	assigned := make([]*models.Assignment, 0, 1)
	for _, cand := range candidates {
		a, err := co.ledger.CreateAssignment(ctx, caseID, cand.Helper.ID)
		if err != nil {
			if errors.IsCode(err, errors.CodeNotEligible) || errors.IsCode(err, errors.CodeDuplicateActive) {
				continue
			}
			return assigned, err
		}
		assigned = append(assigned, a)
		co.asyncHelperGuide(c, a, cand.DistanceMeters)
		if co.opts.AssignMode != AssignBroadcast {
			break
		}
	}
	return assigned, nil
}

// RematchSweep 重扫久未指派的 open 案件，由定时任务驱动。
// 单个案件失败只记日志，不中断整轮扫描。
func (co *Coordinator) RematchSweep(ctx context.Context) {
	cutoff := time.Now().Add(-co.opts.RematchMinAge)
	cases, err := models.ListOpenCasesOlderThan(co.db.WithContext(ctx), cutoff)
	if err != nil {
		logger.Error("rematch sweep: list open cases failed", zap.Error(err))
		return
	}
	for i := range cases {
		assigned, err := co.FindAndAssign(ctx, cases[i].ID)
		if err != nil {
			logger.Warn("rematch sweep: assign failed",
				zap.Uint("case_id", cases[i].ID), zap.Error(err))
			continue
		}
		if len(assigned) > 0 {
			logger.Info("rematch sweep: case assigned",
				zap.Uint("case_id", cases[i].ID), zap.Int("assignments", len(assigned)))
		}
	}
}

// asyncCallerGuide 后台为求助者生成应急指引并写入时间线。
// 生成失败记 processing_error 事件，绝不影响受理路径。
func (co *Coordinator) asyncCallerGuide(c *models.Case) {
	if co.gen == nil {
		return
	}
	cc := caseContext(c, 0)
	caseID := c.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), co.opts.GuideTimeout)
		defer cancel()
		text, err := co.gen.CallerGuide(ctx, cc)
		u := &models.Update{
			CaseID: &caseID,
			Source: models.SourceAIAgent,
			Type:   models.UpdateTypeGuidance,
			Text:   text,
		}
		if err != nil {
			u.Type = models.UpdateTypeProcessingError
			u.Text = fmt.Sprintf("caller guide generation failed: %v", err)
			logger.Warn("caller guide generation failed", zap.Uint("case_id", caseID), zap.Error(err))
		}
		if rerr := co.rec.Record(ctx, u); rerr != nil {
			logger.Error("record guide update failed", zap.Uint("case_id", caseID), zap.Error(rerr))
		}
	}()
}

// asyncHelperGuide 后台为帮助者生成处置指引，作为求助方代理的
// guidance 消息进入指派线程，帮助者下次轮询即可读到
func (co *Coordinator) asyncHelperGuide(c *models.Case, a *models.Assignment, distance float64) {
	if co.gen == nil {
		return
	}
	cc := caseContext(c, distance)
	assignmentID := a.ID
	caseID := c.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), co.opts.GuideTimeout)
		defer cancel()
		text, err := co.gen.HelperGuide(ctx, cc)
		if err != nil {
			logger.Warn("helper guide generation failed", zap.Uint("assignment_id", assignmentID), zap.Error(err))
			uerr := co.rec.Record(ctx, &models.Update{
				CaseID:       &caseID,
				AssignmentID: &assignmentID,
				Source:       models.SourceAIAgent,
				Type:         models.UpdateTypeProcessingError,
				Text:         fmt.Sprintf("helper guide generation failed: %v", err),
			})
			if uerr != nil {
				logger.Error("record processing error failed", zap.Error(uerr))
			}
			return
		}
		_, perr := co.ch.Post(ctx, &models.AgentMessage{
			AssignmentID: assignmentID,
			Sender:       models.SenderVictimAgent,
			Type:         models.MessageGuidance,
			Text:         text,
		})
		if perr != nil {
			logger.Warn("post helper guide failed", zap.Uint("assignment_id", assignmentID), zap.Error(perr))
		}
	}()
}

func caseContext(c *models.Case, distance float64) llm.CaseContext {
	return llm.CaseContext{
		Description:    c.Description,
		Urgency:        string(c.Urgency),
		DangerLevel:    string(c.DangerLevel),
		Mobility:       c.MobilityStatus,
		PeopleCount:    c.PeopleCount,
		Vulnerability:  c.Vulnerability,
		DistanceMeters: distance,
	}
}

// --- 指派生命周期（台账的薄转发） ---

func (co *Coordinator) ClaimAssignment(ctx context.Context, caseID, helperID uint) (*models.Assignment, error) {
	return co.ledger.CreateAssignment(ctx, caseID, helperID)
}

func (co *Coordinator) StartProgress(ctx context.Context, assignmentID uint) (*models.Assignment, error) {
	return co.ledger.StartProgress(ctx, assignmentID)
}

func (co *Coordinator) CompleteAssignment(ctx context.Context, assignmentID uint, outcome models.Outcome, notes string) (*models.Assignment, error) {
	return co.ledger.CompleteAssignment(ctx, assignmentID, outcome, notes)
}

func (co *Coordinator) Reassign(ctx context.Context, assignmentID uint) (*models.Assignment, error) {
	return co.ledger.Reassign(ctx, assignmentID)
}

func (co *Coordinator) ResolveCase(ctx context.Context, caseID uint, source models.UpdateSource) error {
	return co.ledger.ResolveCase(ctx, caseID, source)
}

func (co *Coordinator) CloseCase(ctx context.Context, caseID uint, source models.UpdateSource) error {
	return co.ledger.CloseCase(ctx, caseID, source)
}

// --- 消息通道（通道的薄转发） ---

func (co *Coordinator) PostMessage(ctx context.Context, m *models.AgentMessage) (*models.AgentMessage, error) {
	return co.ch.Post(ctx, m)
}

func (co *Coordinator) PollMessages(ctx context.Context, assignmentID uint, reader models.SenderRole, sinceID uint, limit int) ([]models.AgentMessage, error) {
	return co.ch.ListUnread(ctx, assignmentID, reader, sinceID, limit)
}

func (co *Coordinator) MarkMessagesRead(ctx context.Context, reader models.SenderRole, ids []uint) (int64, error) {
	return co.ch.MarkRead(ctx, reader, ids)
}

func (co *Coordinator) MessageHistory(ctx context.Context, assignmentID uint, limit int) ([]models.AgentMessage, error) {
	return co.ch.History(ctx, assignmentID, limit)
}

func (co *Coordinator) LatestOpenQuestion(ctx context.Context, assignmentID uint, reader models.SenderRole) (*models.AgentMessage, error) {
	return co.ch.LatestOpenQuestion(ctx, assignmentID, reader)
}

// --- 时间线 ---

func (co *Coordinator) Timeline(ctx context.Context, f models.UpdateFilter, limit int, before time.Time) ([]models.Update, error) {
	return co.rec.Query(ctx, f, limit, before)
}

// RecordUpdate 外部来源（官方通报、帮助者现场笔记）直接追加审计事件
func (co *Coordinator) RecordUpdate(ctx context.Context, u *models.Update) error {
	return co.rec.Record(ctx, u)
}

// --- 用户 ---

func (co *Coordinator) RegisterUser(ctx context.Context, u *models.User) (*models.User, error) {
	err := co.withRetry(ctx, func() error {
		if _, err := models.CreateUser(co.db.WithContext(ctx), u); err != nil {
			return errors.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (co *Coordinator) UpdateUserLocation(ctx context.Context, userID uint, lat, lon float64) error {
	db := co.db.WithContext(ctx)
	if _, err := models.GetUser(db, userID); err != nil {
		return errors.NotFound("user", userID)
	}
	return co.withRetry(ctx, func() error {
		if err := models.UpdateUserLocation(db, userID, lat, lon); err != nil {
			return errors.Storage(err)
		}
		return nil
	})
}

func (co *Coordinator) UpdateUserProfile(ctx context.Context, u *models.User) error {
	db := co.db.WithContext(ctx)
	if _, err := models.GetUser(db, u.ID); err != nil {
		return errors.NotFound("user", u.ID)
	}
	return co.withRetry(ctx, func() error {
		if err := models.UpdateUserProfile(db, u); err != nil {
			return errors.Storage(err)
		}
		return nil
	})
}

// --- 查询 ---

func (co *Coordinator) GetUser(ctx context.Context, id uint) (*models.User, error) {
	u, err := models.GetUser(co.db.WithContext(ctx), id)
	if err != nil {
		return nil, errors.NotFound("user", id)
	}
	return u, nil
}

// UserByExternalID 按客户端持有的匿名标识查用户
func (co *Coordinator) UserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	u, err := models.GetUserByExternalID(co.db.WithContext(ctx), externalID)
	if err != nil {
		return nil, errors.NotFound("user", externalID)
	}
	return u, nil
}

func (co *Coordinator) LocationHistory(ctx context.Context, userID uint, limit int) ([]models.LocationPing, error) {
	pings, err := models.GetLocationHistory(co.db.WithContext(ctx), userID, limit)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return pings, nil
}

func (co *Coordinator) GetEmergency(ctx context.Context, id uint) (*models.Emergency, error) {
	e, err := models.GetEmergency(co.db.WithContext(ctx), id)
	if err != nil {
		return nil, errors.NotFound("emergency", id)
	}
	return e, nil
}

func (co *Coordinator) CaseGroups(ctx context.Context, emergencyID uint) ([]models.CaseGroup, error) {
	groups, err := models.GetCaseGroupsByEmergency(co.db.WithContext(ctx), emergencyID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return groups, nil
}

// CaseDetail 案件及其指派（含历史）
type CaseDetail struct {
	Case        models.Case         `json:"case"`
	Assignments []models.Assignment `json:"assignments"`
}

func (co *Coordinator) GetCase(ctx context.Context, id uint) (*CaseDetail, error) {
	db := co.db.WithContext(ctx)
	c, err := models.GetCase(db, id)
	if err != nil {
		return nil, errors.NotFound("case", id)
	}
	assignments, err := models.AssignmentsByCase(db, id)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return &CaseDetail{Case: *c, Assignments: assignments}, nil
}

func (co *Coordinator) CaseAssignments(ctx context.Context, caseID uint) ([]models.Assignment, error) {
	list, err := models.AssignmentsByCase(co.db.WithContext(ctx), caseID)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return list, nil
}

func (co *Coordinator) HelperAssignments(ctx context.Context, helperID uint, includeCompleted bool) ([]models.Assignment, error) {
	list, err := models.AssignmentsByHelper(co.db.WithContext(ctx), helperID, includeCompleted)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return list, nil
}

// Candidates 只读的候选搜索，不做指派
func (co *Coordinator) Candidates(ctx context.Context, caseID uint) ([]matching.Candidate, error) {
	c, err := models.GetCase(co.db.WithContext(ctx), caseID)
	if err != nil {
		return nil, errors.NotFound("case", caseID)
	}
	candidates, err := co.match.FindCandidates(ctx, c)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return candidates, nil
}

// NearbyCase 附近案件及其到查询点的距离
type NearbyCase struct {
	Case           models.Case `json:"case"`
	DistanceMeters float64     `json:"distanceMeters"`
}

// NearbyCases 帮助者视角浏览给定半径内未终结的案件，按距离升序
func (co *Coordinator) NearbyCases(ctx context.Context, lat, lon, radiusMeters float64) ([]NearbyCase, error) {
	cases, err := models.ListCasesByStatus(co.db.WithContext(ctx),
		[]models.CaseStatus{models.CaseOpen, models.CaseAssigned, models.CaseInProgress})
	if err != nil {
		return nil, errors.Storage(err)
	}
	out := make([]NearbyCase, 0, len(cases))
	for i := range cases {
		d := matching.Distance(lat, lon, cases[i].Latitude, cases[i].Longitude)
		if d <= radiusMeters {
			out = append(out, NearbyCase{Case: cases[i], DistanceMeters: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}
