package matching

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"RescueHub/internal/models"
	"RescueHub/pkg/config"
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

func newTestEngine(db *gorm.DB) *Engine {
	return New(db, Config{
		SkillInference:      config.DefaultSkillInference(),
		DefaultRadiusMeters: 10000,
	}, nil, nil)
}

func addHelper(t *testing.T, db *gorm.DB, lat, lon float64, skills []string, maxRange *float64) *models.User {
	t.Helper()
	u, err := models.CreateUser(db, &models.User{
		Latitude: lat, Longitude: lon,
		Skills: skills, MaxRangeMeters: maxRange,
	})
	require.NoError(t, err)
	return u
}

func TestDistance(t *testing.T) {
	// 同纬度约 0.064 经度差，在北纬 40 度附近约 5.4km
	d := Distance(39.9087, 116.3975, 39.9089, 116.4610)
	assert.InDelta(t, 5400, d, 200)

	assert.Zero(t, Distance(39.9, 116.4, 39.9, 116.4))
}

func TestRequiredSkills(t *testing.T) {
	e := newTestEngine(openTestDB(t))

	t.Run("vulnerability tags map to skills", func(t *testing.T) {
		c := &models.Case{
			Vulnerability: models.StringSet{"trapped", "injury"},
			Urgency:       models.UrgencyHigh,
			DangerLevel:   models.DangerModerate,
		}
		required := e.RequiredSkills(c)
		assert.ElementsMatch(t, []string{"rescue", "medical"}, []string(required))
	})

	t.Run("danger level contributes", func(t *testing.T) {
		c := &models.Case{DangerLevel: models.DangerLifeThreatening}
		assert.Equal(t, models.StringSet{"medical"}, e.RequiredSkills(c))
	})

	t.Run("no signal means no requirement", func(t *testing.T) {
		c := &models.Case{Urgency: models.UrgencyLow, DangerLevel: models.DangerSafe}
		assert.Empty(t, e.RequiredSkills(c))
	})
}

func TestFindCandidates(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(db)
	ctx := context.Background()

	base := &models.Case{Latitude: 39.9000, Longitude: 116.4000}

	t.Run("empty when nobody in range", func(t *testing.T) {
		// 远在上海的帮助者
		addHelper(t, db, 31.23, 121.47, []string{"rescue"}, nil)
		got, err := e.FindCandidates(ctx, base)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ordered by distance then overlap then id", func(t *testing.T) {
		far := addHelper(t, db, 39.9400, 116.4000, []string{"rescue"}, nil)    // ~4.4km
		near := addHelper(t, db, 39.9050, 116.4000, []string{"rescue"}, nil)   // ~0.6km
		nearer := addHelper(t, db, 39.9010, 116.4000, []string{"rescue"}, nil) // ~0.1km

		got, err := e.FindCandidates(ctx, base)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, nearer.ID, got[0].Helper.ID)
		assert.Equal(t, near.ID, got[1].Helper.ID)
		assert.Equal(t, far.ID, got[2].Helper.ID)
		assert.True(t, got[0].DistanceMeters < got[1].DistanceMeters)
	})

	t.Run("skill filter excludes mismatched helpers", func(t *testing.T) {
		db := openTestDB(t)
		e := newTestEngine(db)
		medic := addHelper(t, db, 39.9010, 116.4000, []string{"medical"}, nil)
		addHelper(t, db, 39.9005, 116.4000, []string{"logistics"}, nil)

		c := &models.Case{
			Latitude: 39.9000, Longitude: 116.4000,
			Vulnerability: models.StringSet{"injury"},
		}
		got, err := e.FindCandidates(ctx, c)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, medic.ID, got[0].Helper.ID)
	})

	t.Run("no inferred skills admits any helper in range", func(t *testing.T) {
		db := openTestDB(t)
		e := newTestEngine(db)
		addHelper(t, db, 39.9010, 116.4000, []string{"logistics"}, nil)
		got, err := e.FindCandidates(ctx, &models.Case{Latitude: 39.9000, Longitude: 116.4000})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("helper max range overrides default radius", func(t *testing.T) {
		db := openTestDB(t)
		e := newTestEngine(db)
		short := 100.0
		addHelper(t, db, 39.9050, 116.4000, []string{"rescue"}, &short) // ~600m 外，但半径只有 100m
		got, err := e.FindCandidates(ctx, &models.Case{Latitude: 39.9000, Longitude: 116.4000})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("caller never matched to own case", func(t *testing.T) {
		db := openTestDB(t)
		e := newTestEngine(db)
		caller := addHelper(t, db, 39.9001, 116.4000, []string{"rescue"}, nil)
		c := &models.Case{Latitude: 39.9000, Longitude: 116.4000, CallerUserID: &caller.ID}
		got, err := e.FindCandidates(ctx, c)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestEligible(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(db)

	helper := addHelper(t, db, 39.9010, 116.4000, []string{"medical"}, nil)
	c := &models.Case{
		Latitude: 39.9000, Longitude: 116.4000,
		Vulnerability: models.StringSet{"injury"},
	}

	t.Run("in range with skill", func(t *testing.T) {
		dist, ok := e.Eligible(c, helper)
		assert.True(t, ok)
		assert.Greater(t, dist, 0.0)
	})

	t.Run("skills removed after matching", func(t *testing.T) {
		stripped := *helper
		stripped.Skills = nil
		_, ok := e.Eligible(c, &stripped)
		assert.False(t, ok)
	})

	t.Run("caller is never eligible", func(t *testing.T) {
		own := *c
		own.CallerUserID = &helper.ID
		_, ok := e.Eligible(&own, helper)
		assert.False(t, ok)
	})
}
