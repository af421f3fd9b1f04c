package ledger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"RescueHub/internal/matching"
	"RescueHub/internal/models"
	"RescueHub/internal/timeline"
	"RescueHub/pkg/config"
	"RescueHub/pkg/errors"
	"RescueHub/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	led *Ledger
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := util.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	engine := matching.New(db, matching.Config{
		SkillInference:      config.DefaultSkillInference(),
		DefaultRadiusMeters: 10000,
	}, nil, nil)
	rec := timeline.NewRecorder(db)
	return &fixture{
		db:  db,
		led: New(db, engine, rec, nil, 5),
		ctx: context.Background(),
	}
}

func (f *fixture) newHelper(t *testing.T, skills ...string) *models.User {
	t.Helper()
	u, err := models.CreateUser(f.db, &models.User{
		Latitude: 39.9010, Longitude: 116.4000,
		Skills: skills,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) newCase(t *testing.T) *models.Case {
	t.Helper()
	c, err := models.CreateCase(f.db, &models.Case{
		Latitude: 39.9000, Longitude: 116.4000,
		Description: "trapped under debris",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) caseStatus(t *testing.T, id uint) models.CaseStatus {
	t.Helper()
	c, err := models.GetCase(f.db, id)
	require.NoError(t, err)
	return c.Status
}

func (f *fixture) timelineTypes(t *testing.T, caseID uint) []string {
	t.Helper()
	updates, err := models.QueryUpdates(f.db, models.UpdateFilter{CaseID: &caseID}, 100, time.Time{})
	require.NoError(t, err)
	types := make([]string, 0, len(updates))
	for _, u := range updates {
		types = append(types, u.Type)
	}
	return types
}

func TestCreateAssignment(t *testing.T) {
	t.Run("moves open case to assigned and records audit", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)

		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)
		assert.True(t, a.Active())
		assert.Equal(t, models.CaseAssigned, f.caseStatus(t, c.ID))

		types := f.timelineTypes(t, c.ID)
		assert.Contains(t, types, models.UpdateTypeStatusChange)
		assert.Contains(t, types, models.UpdateTypeAssignmentCreated)
	})

	t.Run("rejects helper without required skill", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "logistics")
		c, err := models.CreateCase(f.db, &models.Case{
			Latitude: 39.9000, Longitude: 116.4000,
			Vulnerability: models.StringSet{"trapped"},
		})
		require.NoError(t, err)

		_, err = f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		assert.True(t, errors.IsCode(err, errors.CodeNotEligible))
		assert.Equal(t, models.CaseOpen, f.caseStatus(t, c.ID))
	})

	t.Run("rejects duplicate active assignment for same helper", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)

		_, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)
		_, err = f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		assert.True(t, errors.IsCode(err, errors.CodeDuplicateActive))
	})

	t.Run("second helper joins without extra transition", func(t *testing.T) {
		f := newFixture(t)
		h1 := f.newHelper(t, "rescue")
		h2 := f.newHelper(t, "rescue")
		c := f.newCase(t)

		_, err := f.led.CreateAssignment(f.ctx, c.ID, h1.ID)
		require.NoError(t, err)
		_, err = f.led.CreateAssignment(f.ctx, c.ID, h2.ID)
		require.NoError(t, err)

		assert.Equal(t, models.CaseAssigned, f.caseStatus(t, c.ID))
		active, err := models.ActiveAssignments(f.db, c.ID)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("closed case cannot be assigned", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)

		require.NoError(t, f.led.CloseCase(f.ctx, c.ID, models.SourceOfficial))
		_, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		assert.True(t, errors.IsCode(err, errors.CodeConflict))
	})

	t.Run("unknown case and helper", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)

		_, err := f.led.CreateAssignment(f.ctx, 999, h.ID)
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
		_, err = f.led.CreateAssignment(f.ctx, c.ID, 999)
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}

func TestStartProgress(t *testing.T) {
	f := newFixture(t)
	h := f.newHelper(t, "rescue")
	c := f.newCase(t)
	a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
	require.NoError(t, err)

	started, err := f.led.StartProgress(f.ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, started.StartedAt)
	assert.Equal(t, models.CaseInProgress, f.caseStatus(t, c.ID))

	_, err = f.led.CompleteAssignment(f.ctx, a.ID, models.OutcomeSuccessful, "")
	require.NoError(t, err)
	_, err = f.led.StartProgress(f.ctx, a.ID)
	assert.True(t, errors.IsCode(err, errors.CodeNotActive))
}

func TestCompleteAssignment(t *testing.T) {
	t.Run("successful completion resolves the case", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)

		done, err := f.led.CompleteAssignment(f.ctx, a.ID, models.OutcomeSuccessful, "")
		require.NoError(t, err)
		assert.False(t, done.Active())
		assert.Equal(t, models.CaseResolved, f.caseStatus(t, c.ID))

		got, err := models.GetCase(f.db, c.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.ResolvedAt)
	})

	t.Run("failed completion reopens the case", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)

		_, err = f.led.CompleteAssignment(f.ctx, a.ID, models.OutcomeFailed, "")
		require.NoError(t, err)
		assert.Equal(t, models.CaseOpen, f.caseStatus(t, c.ID))
	})

	t.Run("case stays assigned while other helpers remain", func(t *testing.T) {
		f := newFixture(t)
		h1 := f.newHelper(t, "rescue")
		h2 := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a1, err := f.led.CreateAssignment(f.ctx, c.ID, h1.ID)
		require.NoError(t, err)
		_, err = f.led.CreateAssignment(f.ctx, c.ID, h2.ID)
		require.NoError(t, err)

		_, err = f.led.CompleteAssignment(f.ctx, a1.ID, models.OutcomeFailed, "")
		require.NoError(t, err)
		assert.Equal(t, models.CaseAssigned, f.caseStatus(t, c.ID))
	})

	t.Run("case falls back to assigned when the only started helper fails", func(t *testing.T) {
		f := newFixture(t)
		h1 := f.newHelper(t, "rescue")
		h2 := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a1, err := f.led.CreateAssignment(f.ctx, c.ID, h1.ID)
		require.NoError(t, err)
		_, err = f.led.CreateAssignment(f.ctx, c.ID, h2.ID)
		require.NoError(t, err)

		_, err = f.led.StartProgress(f.ctx, a1.ID)
		require.NoError(t, err)
		require.Equal(t, models.CaseInProgress, f.caseStatus(t, c.ID))

		// 剩下的 h2 还没开始，案件不能停留在 in_progress
		_, err = f.led.CompleteAssignment(f.ctx, a1.ID, models.OutcomeFailed, "")
		require.NoError(t, err)
		assert.Equal(t, models.CaseAssigned, f.caseStatus(t, c.ID))
	})

	t.Run("double completion is rejected", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)

		_, err = f.led.CompleteAssignment(f.ctx, a.ID, models.OutcomeSuccessful, "")
		require.NoError(t, err)
		_, err = f.led.CompleteAssignment(f.ctx, a.ID, models.OutcomeFailed, "")
		assert.True(t, errors.IsCode(err, errors.CodeNotActive))
	})

	t.Run("invalid outcome", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.led.CompleteAssignment(f.ctx, 1, models.Outcome("bogus"), "")
		assert.Error(t, err)
	})
}

func TestReassign(t *testing.T) {
	t.Run("picks next untried candidate", func(t *testing.T) {
		f := newFixture(t)
		h1 := f.newHelper(t, "rescue")
		h2 := f.newHelper(t, "rescue")
		c := f.newCase(t)

		a1, err := f.led.CreateAssignment(f.ctx, c.ID, h1.ID)
		require.NoError(t, err)

		next, err := f.led.Reassign(f.ctx, a1.ID)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, h2.ID, next.HelperUserID)
		assert.Equal(t, models.CaseAssigned, f.caseStatus(t, c.ID))

		old, err := models.GetAssignment(f.db, a1.ID)
		require.NoError(t, err)
		require.NotNil(t, old.Outcome)
		assert.Equal(t, models.OutcomeReassigned, *old.Outcome)
	})

	t.Run("no replacement reopens the case", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)

		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)

		next, err := f.led.Reassign(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Nil(t, next)
		assert.Equal(t, models.CaseOpen, f.caseStatus(t, c.ID))
	})
}

func TestResolveCase(t *testing.T) {
	t.Run("caller can resolve with zero assignments", func(t *testing.T) {
		f := newFixture(t)
		c := f.newCase(t)

		require.NoError(t, f.led.ResolveCase(f.ctx, c.ID, models.SourceCaller))
		assert.Equal(t, models.CaseResolved, f.caseStatus(t, c.ID))
	})

	t.Run("active assignments complete as successful", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)

		require.NoError(t, f.led.ResolveCase(f.ctx, c.ID, models.SourceCaller))
		got, err := models.GetAssignment(f.db, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Outcome)
		assert.Equal(t, models.OutcomeSuccessful, *got.Outcome)
	})

	t.Run("resolving a closed case conflicts", func(t *testing.T) {
		f := newFixture(t)
		c := f.newCase(t)
		require.NoError(t, f.led.CloseCase(f.ctx, c.ID, models.SourceOfficial))
		err := f.led.ResolveCase(f.ctx, c.ID, models.SourceCaller)
		assert.True(t, errors.IsCode(err, errors.CodeConflict))
	})
}

func TestCloseCase(t *testing.T) {
	f := newFixture(t)
	h := f.newHelper(t, "rescue")
	c := f.newCase(t)
	a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
	require.NoError(t, err)

	require.NoError(t, f.led.CloseCase(f.ctx, c.ID, models.SourceOfficial))
	assert.Equal(t, models.CaseClosed, f.caseStatus(t, c.ID))

	got, err := models.GetAssignment(f.db, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, models.OutcomeCancelled, *got.Outcome)

	// 终态不可再动
	require.Error(t, f.led.CloseCase(f.ctx, c.ID, models.SourceOfficial))
}

func TestOptimisticVersioning(t *testing.T) {
	t.Run("stale conditional write fails", func(t *testing.T) {
		f := newFixture(t)
		c := f.newCase(t)

		// 模拟并发抢先：陈旧版本的条件写入必须失败
		ok, err := models.CompareAndSetCaseStatus(f.db, c.ID, c.Version, map[string]any{"status": models.CaseClosed})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = models.CompareAndSetCaseStatus(f.db, c.ID, c.Version, map[string]any{"status": models.CaseResolved})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, models.CaseClosed, f.caseStatus(t, c.ID))
	})

	t.Run("appending a helper still bumps the version", func(t *testing.T) {
		f := newFixture(t)
		h1 := f.newHelper(t, "rescue")
		h2 := f.newHelper(t, "rescue")
		c := f.newCase(t)

		_, err := f.led.CreateAssignment(f.ctx, c.ID, h1.ID)
		require.NoError(t, err)
		mid, err := models.GetCase(f.db, c.ID)
		require.NoError(t, err)

		// 第二条指派不改状态，但必须推进版本号：
		// 持有 mid 版本的终止事务要输掉条件写入
		_, err = f.led.CreateAssignment(f.ctx, c.ID, h2.ID)
		require.NoError(t, err)

		ok, err := models.CompareAndSetCaseStatus(f.db, c.ID, mid.Version, map[string]any{"status": models.CaseClosed})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestConcurrentSuccessfulCompletions(t *testing.T) {
	t.Run("case resolves once when both helpers succeed", func(t *testing.T) {
		f := newFixture(t)
		h1 := f.newHelper(t, "rescue")
		h2 := f.newHelper(t, "rescue")
		c := f.newCase(t)

		a1, err := f.led.CreateAssignment(f.ctx, c.ID, h1.ID)
		require.NoError(t, err)
		a2, err := f.led.CreateAssignment(f.ctx, c.ID, h2.ID)
		require.NoError(t, err)
		_, err = f.led.StartProgress(f.ctx, a1.ID)
		require.NoError(t, err)
		_, err = f.led.StartProgress(f.ctx, a2.ID)
		require.NoError(t, err)

		_, err = f.led.CompleteAssignment(f.ctx, a1.ID, models.OutcomeSuccessful, "")
		require.NoError(t, err)
		assert.Equal(t, models.CaseInProgress, f.caseStatus(t, c.ID))

		_, err = f.led.CompleteAssignment(f.ctx, a2.ID, models.OutcomeSuccessful, "")
		require.NoError(t, err)
		assert.Equal(t, models.CaseResolved, f.caseStatus(t, c.ID))

		got, err := models.GetCase(f.db, c.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.ResolvedAt)

		updates, err := models.QueryUpdates(f.db, models.UpdateFilter{
			CaseID: &c.ID, Type: models.UpdateTypeStatusChange,
		}, 100, time.Time{})
		require.NoError(t, err)
		resolved := 0
		for _, u := range updates {
			if strings.HasSuffix(u.Text, "to resolved") {
				resolved++
			}
		}
		assert.Equal(t, 1, resolved)
	})

	t.Run("completing on an already resolved case records the outcome only", func(t *testing.T) {
		f := newFixture(t)
		h := f.newHelper(t, "rescue")
		c := f.newCase(t)
		a, err := f.led.CreateAssignment(f.ctx, c.ID, h.ID)
		require.NoError(t, err)

		// 模拟竞争赢家先行终结了案件
		cur, err := models.GetCase(f.db, c.ID)
		require.NoError(t, err)
		ok, err := models.CompareAndSetCaseStatus(f.db, c.ID, cur.Version, map[string]any{
			"status": models.CaseResolved, "resolved_at": time.Now(),
		})
		require.NoError(t, err)
		require.True(t, ok)

		done, err := f.led.CompleteAssignment(f.ctx, a.ID, models.OutcomeSuccessful, "")
		require.NoError(t, err)
		require.NotNil(t, done.Outcome)
		assert.Equal(t, models.OutcomeSuccessful, *done.Outcome)
		assert.Equal(t, models.CaseResolved, f.caseStatus(t, c.ID))
	})
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, canTransition(models.CaseOpen, models.CaseAssigned))
	assert.True(t, canTransition(models.CaseOpen, models.CaseClosed))
	assert.True(t, canTransition(models.CaseInProgress, models.CaseOpen))
	assert.True(t, canTransition(models.CaseResolved, models.CaseClosed))
	assert.False(t, canTransition(models.CaseClosed, models.CaseOpen))
	assert.False(t, canTransition(models.CaseResolved, models.CaseOpen))
	assert.False(t, canTransition(models.CaseOpen, models.CaseInProgress))
}
