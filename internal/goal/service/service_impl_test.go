package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/fiscoach/fiscoach/internal/goal/domain"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
)

type goalFixture struct {
	svc  domain.Service
	node *snowflake.Node

	orgID   snowflake.ID
	ownerID snowflake.ID
}

func newGoalFixture(t *testing.T) *goalFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.Goal{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
	})

	return &goalFixture{
		svc:     svc,
		node:    node,
		orgID:   node.Generate(),
		ownerID: node.Generate(),
	}
}

func (f *goalFixture) ownerCtx() context.Context {
	return f.ctxFor(f.ownerID)
}

func (f *goalFixture) ctxFor(actorID snowflake.ID) context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  actorID,
		TenantID: f.orgID,
		Role:     tenantctx.RoleEmployee,
	})
}

func TestGoalCreateValidates(t *testing.T) {
	f := newGoalFixture(t)
	ctx := f.ownerCtx()

	_, err := f.svc.Create(ctx, domain.CreateGoalRequest{Name: "  ", TargetMinor: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Create(ctx, domain.CreateGoalRequest{Name: "Emergency fund", TargetMinor: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
}

func TestGoalLifecycle(t *testing.T) {
	f := newGoalFixture(t)
	ctx := f.ownerCtx()

	goal, err := f.svc.Create(ctx, domain.CreateGoalRequest{
		Name:        "Emergency fund",
		TargetMinor: 300_000,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GoalActive, goal.Status)
	assert.Equal(t, "eur", goal.Currency)
	assert.Equal(t, f.ownerID, goal.OwnerID)

	saved := int64(150_000)
	updated, err := f.svc.Update(ctx, goal.ID.String(), domain.UpdateGoalRequest{SavedMinor: &saved})
	require.NoError(t, err)
	assert.Equal(t, saved, updated.SavedMinor)

	achieved := domain.GoalAchieved
	updated, err = f.svc.Update(ctx, goal.ID.String(), domain.UpdateGoalRequest{Status: &achieved})
	require.NoError(t, err)
	assert.Equal(t, domain.GoalAchieved, updated.Status)

	bogus := domain.GoalStatus("paused")
	_, err = f.svc.Update(ctx, goal.ID.String(), domain.UpdateGoalRequest{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.NoError(t, f.svc.Delete(ctx, goal.ID.String()))
	_, err = f.svc.GetByID(ctx, goal.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGoalsAreOwnerScoped(t *testing.T) {
	f := newGoalFixture(t)

	goal, err := f.svc.Create(f.ownerCtx(), domain.CreateGoalRequest{
		Name:        "Vacation",
		TargetMinor: 80_000,
	})
	require.NoError(t, err)

	otherCtx := f.ctxFor(f.node.Generate())
	_, err = f.svc.GetByID(otherCtx, goal.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// An update probe from another employee reads as a miss too.
	name := "Hijacked"
	_, err = f.svc.Update(otherCtx, goal.ID.String(), domain.UpdateGoalRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	goals, err := f.svc.List(otherCtx)
	require.NoError(t, err)
	assert.Empty(t, goals)
}
