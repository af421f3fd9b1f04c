package timeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"RescueHub/internal/models"
	"RescueHub/pkg/errors"
	"RescueHub/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := util.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

// 搭一套 emergency → group → case → assignment 层级
func seedHierarchy(t *testing.T, db *gorm.DB) (*models.Emergency, *models.CaseGroup, *models.Case, *models.Assignment) {
	t.Helper()
	e, err := models.CreateEmergency(db, &models.Emergency{Name: "flood"})
	require.NoError(t, err)
	g, err := models.CreateCaseGroup(db, &models.CaseGroup{EmergencyID: e.ID, Name: "north bank"})
	require.NoError(t, err)
	c, err := models.CreateCase(db, &models.Case{
		EmergencyID: &e.ID, CaseGroupID: &g.ID,
		Latitude: 39.9, Longitude: 116.4, Description: "roof collapse",
	})
	require.NoError(t, err)
	a := &models.Assignment{CaseID: c.ID, HelperUserID: 1}
	require.NoError(t, db.Create(a).Error)
	return e, g, c, a
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("assignment event backfills case and ancestors", func(t *testing.T) {
		db := openTestDB(t)
		e, g, c, a := seedHierarchy(t, db)
		rec := NewRecorder(db)

		u := &models.Update{
			AssignmentID: &a.ID,
			Source:       models.SourceHelper,
			Type:         models.UpdateTypeAssignmentStarted,
			Text:         "on my way",
		}
		require.NoError(t, rec.Record(ctx, u))
		require.NotNil(t, u.CaseID)
		assert.Equal(t, c.ID, *u.CaseID)
		require.NotNil(t, u.CaseGroupID)
		assert.Equal(t, g.ID, *u.CaseGroupID)
		require.NotNil(t, u.EmergencyID)
		assert.Equal(t, e.ID, *u.EmergencyID)
	})

	t.Run("rejects mismatched parent references", func(t *testing.T) {
		db := openTestDB(t)
		_, _, c, a := seedHierarchy(t, db)
		rec := NewRecorder(db)

		other, err := models.CreateCase(db, &models.Case{Latitude: 1, Longitude: 1})
		require.NoError(t, err)

		err = rec.Record(ctx, &models.Update{
			AssignmentID: &a.ID,
			CaseID:       &other.ID,
			Source:       models.SourceHelper,
			Type:         models.UpdateTypeAssignmentStarted,
		})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidReference))

		otherEmergency, err := models.CreateEmergency(db, &models.Emergency{Name: "quake"})
		require.NoError(t, err)
		err = rec.Record(ctx, &models.Update{
			CaseID:      &c.ID,
			EmergencyID: &otherEmergency.ID,
			Source:      models.SourceOfficial,
			Type:        models.UpdateTypeStatusChange,
		})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidReference))
	})

	t.Run("rejects events without any reference", func(t *testing.T) {
		db := openTestDB(t)
		rec := NewRecorder(db)
		err := rec.Record(ctx, &models.Update{
			Source: models.SourceSystem,
			Type:   models.UpdateTypeStatusChange,
		})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidReference))
	})

	t.Run("rejects unknown source and empty type", func(t *testing.T) {
		db := openTestDB(t)
		_, _, c, _ := seedHierarchy(t, db)
		rec := NewRecorder(db)

		err := rec.Record(ctx, &models.Update{
			CaseID: &c.ID, Source: "martian", Type: models.UpdateTypeStatusChange,
		})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidReference))

		err = rec.Record(ctx, &models.Update{
			CaseID: &c.ID, Source: models.SourceSystem,
		})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidReference))
	})
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, _, c, _ := seedHierarchy(t, db)
	rec := NewRecorder(db)

	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Record(ctx, &models.Update{
			CaseID: &c.ID,
			Source: models.SourceSystem,
			Type:   models.UpdateTypeStatusChange,
			Text:   fmt.Sprintf("event %d", i),
		}))
	}

	t.Run("reverse chronological order", func(t *testing.T) {
		got, err := rec.Query(ctx, models.UpdateFilter{CaseID: &c.ID}, 10, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "event 2", got[0].Text)
		assert.Equal(t, "event 0", got[2].Text)
	})

	t.Run("limit caps the page", func(t *testing.T) {
		got, err := rec.Query(ctx, models.UpdateFilter{CaseID: &c.ID}, 2, time.Time{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("latest returns newest event", func(t *testing.T) {
		got, err := rec.Latest(ctx, models.UpdateFilter{CaseID: &c.ID})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "event 2", got.Text)
	})

	t.Run("latest is nil when nothing matches", func(t *testing.T) {
		got, err := rec.Latest(ctx, models.UpdateFilter{Type: "nonexistent"})
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
