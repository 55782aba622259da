package scope

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fiscoach/fiscoach/internal/tenantctx"
)

// ledgerNote is owner-scoped and hidden from HR, like transaction rows.
type ledgerNote struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"column:org_id;not null;index"`
	OwnerID   snowflake.ID `gorm:"column:owner_id;not null;index"`
	Body      string
	CreatedAt time.Time
}

func (ledgerNote) TableName() string { return "ledger_notes" }

func (ledgerNote) ScopePolicy() Policy {
	return Policy{
		Class:        OwnerScoped,
		TenantColumn: "org_id",
		OwnerColumn:  "owner_id",
		DeniedRoles:  []tenantctx.Role{tenantctx.RoleHR},
	}
}

func (n *ledgerNote) StampTenant(id snowflake.ID) { n.OrgID = id }
func (n *ledgerNote) StampOwner(id snowflake.ID)  { n.OwnerID = id }

// roster is tenant-scoped but shared across the tenant's members.
type roster struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;index"`
	Name  string
}

func (roster) TableName() string { return "rosters" }

func (roster) ScopePolicy() Policy {
	return Policy{Class: TenantScoped, TenantColumn: "org_id"}
}

func (r *roster) StampTenant(id snowflake.ID) { r.OrgID = id }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite is per-connection; a second pooled connection would see
	// an empty database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledgerNote{}, &roster{}))
	return db
}

func employeeCtx(orgID, actorID snowflake.ID) context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  actorID,
		TenantID: orgID,
		Role:     tenantctx.RoleEmployee,
	})
}

func TestStoreRequiresContext(t *testing.T) {
	store := NewStore[ledgerNote](openTestDB(t))

	_, err := store.Find(context.Background(), &ledgerNote{})
	assert.ErrorIs(t, err, ErrContextNotEstablished)

	err = store.Create(context.Background(), &ledgerNote{ID: 1})
	assert.ErrorIs(t, err, ErrContextNotEstablished)
}

func TestStoreOwnerIsolation(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	org := node.Generate()
	alice := node.Generate()
	bob := node.Generate()

	aliceCtx := employeeCtx(org, alice)
	bobCtx := employeeCtx(org, bob)

	note := ledgerNote{ID: node.Generate(), Body: "groceries"}
	require.NoError(t, store.Create(aliceCtx, &note))

	mine, err := store.Find(aliceCtx, &ledgerNote{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := store.Find(bobCtx, &ledgerNote{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	// A direct probe at someone else's row reads as missing, not forbidden.
	got, err := store.FindOne(bobCtx, &ledgerNote{ID: note.ID})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreStampsForgedScopeFields(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	org := node.Generate()
	alice := node.Generate()
	forgedOrg := node.Generate()
	forgedOwner := node.Generate()

	note := ledgerNote{ID: node.Generate(), OrgID: forgedOrg, OwnerID: forgedOwner, Body: "forged"}
	require.NoError(t, store.Create(employeeCtx(org, alice), &note))

	var stored ledgerNote
	require.NoError(t, db.First(&stored, "id = ?", note.ID).Error)
	assert.Equal(t, org, stored.OrgID)
	assert.Equal(t, alice, stored.OwnerID)
}

func TestStoreUpdateStripsScopeColumns(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	org := node.Generate()
	alice := node.Generate()
	ctx := employeeCtx(org, alice)

	note := ledgerNote{ID: node.Generate(), Body: "before"}
	require.NoError(t, store.Create(ctx, &note))

	err := store.Update(ctx, note.ID, map[string]any{
		"body":     "after",
		"org_id":   node.Generate(),
		"owner_id": node.Generate(),
	})
	require.NoError(t, err)

	var stored ledgerNote
	require.NoError(t, db.First(&stored, "id = ?", note.ID).Error)
	assert.Equal(t, "after", stored.Body)
	assert.Equal(t, org, stored.OrgID)
	assert.Equal(t, alice, stored.OwnerID)
}

func TestStoreUpdateMissReportsRecordNotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	org := node.Generate()
	alice := node.Generate()
	bob := node.Generate()

	note := ledgerNote{ID: node.Generate(), Body: "mine"}
	require.NoError(t, store.Create(employeeCtx(org, alice), &note))

	// Bob updating Alice's row is indistinguishable from updating a row that
	// never existed.
	err := store.Update(employeeCtx(org, bob), note.ID, map[string]any{"body": "stolen"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = store.Delete(employeeCtx(org, bob), note.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStoreDeniesHR(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	org := node.Generate()
	hrCtx := tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  node.Generate(),
		TenantID: org,
		Role:     tenantctx.RoleHR,
	})

	_, err := store.Find(hrCtx, &ledgerNote{})
	assert.ErrorIs(t, err, ErrAccessDenied)

	err = store.Create(hrCtx, &ledgerNote{ID: node.Generate()})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestStoreAdminSeesAllTenants(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	orgA := node.Generate()
	orgB := node.Generate()
	require.NoError(t, store.Create(employeeCtx(orgA, node.Generate()), &ledgerNote{ID: node.Generate()}))
	require.NoError(t, store.Create(employeeCtx(orgB, node.Generate()), &ledgerNote{ID: node.Generate()}))

	adminCtx := tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID: node.Generate(),
		Role:    tenantctx.RoleAdmin,
	})
	all, err := store.Find(adminCtx, &ledgerNote{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTenantScopedSharedWithinOrg(t *testing.T) {
	db := openTestDB(t)
	store := NewStore[roster](db)
	node, _ := snowflake.NewNode(1)

	org := node.Generate()
	otherOrg := node.Generate()

	require.NoError(t, store.Create(employeeCtx(org, node.Generate()), &roster{ID: node.Generate(), Name: "q3"}))

	sameOrg, err := store.Find(employeeCtx(org, node.Generate()), &roster{})
	require.NoError(t, err)
	assert.Len(t, sameOrg, 1)

	crossOrg, err := store.Find(employeeCtx(otherOrg, node.Generate()), &roster{})
	require.NoError(t, err)
	assert.Empty(t, crossOrg)
}

func TestUnscopedSystemStoreBypassesScoping(t *testing.T) {
	db := openTestDB(t)
	scoped := NewStore[ledgerNote](db)
	system := UnscopedSystemAccess[ledgerNote](db)
	node, _ := snowflake.NewNode(1)

	require.NoError(t, scoped.Create(employeeCtx(node.Generate(), node.Generate()), &ledgerNote{ID: node.Generate()}))
	require.NoError(t, scoped.Create(employeeCtx(node.Generate(), node.Generate()), &ledgerNote{ID: node.Generate()}))

	all, err := system.Find(context.Background(), &ledgerNote{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
