package scope

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	"github.com/fiscoach/fiscoach/pkg/db/option"
	"gorm.io/gorm"
)

// Store is the policy-enforcing facade over storage. Every tenant-sensitive
// read and write routes through here; the storage layer itself has no notion
// of tenant boundaries.
type Store[T Entity] struct {
	db *gorm.DB
}

func NewStore[T Entity](db *gorm.DB) *Store[T] {
	return &Store[T]{db: db}
}

// WithTrx returns a store bound to an open transaction.
func (s *Store[T]) WithTrx(tx *gorm.DB) *Store[T] {
	return &Store[T]{db: tx}
}

func (s *Store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	stmt, err := s.buildQuery(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	var result []*T
	if err := stmt.Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// FindOne returns (nil, nil) when no row is visible to the actor. A row that
// exists in another tenant looks identical to one that does not exist at all,
// so cross-tenant probes by id cannot distinguish the two.
func (s *Store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	stmt, err := s.buildQuery(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	var result T
	if err := stmt.First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (s *Store[T]) Count(ctx context.Context, query *T) (int64, error) {
	stmt, err := s.buildQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := stmt.Model(new(T)).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create stamps the scoping fields from the bound context before insert,
// overwriting whatever the caller put there.
func (s *Store[T]) Create(ctx context.Context, resource *T) error {
	tc, pol, err := s.guard(ctx)
	if err != nil {
		return err
	}
	stampScopeFields(resource, tc, pol)
	return s.db.WithContext(ctx).Create(resource).Error
}

// Update applies values to the row identified by id, provided the row is
// visible under the actor's scope. Scoping columns cannot be changed through
// this path: they are stripped from the update set.
func (s *Store[T]) Update(ctx context.Context, id snowflake.ID, values map[string]any) error {
	tc, pol, err := s.guard(ctx)
	if err != nil {
		return err
	}
	stripScopeColumns(values, pol)
	stmt := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id)
	stmt = applyScopePredicates(stmt, tc, pol)
	result := stmt.Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id snowflake.ID) error {
	tc, pol, err := s.guard(ctx)
	if err != nil {
		return err
	}
	var dummy T
	stmt := s.db.WithContext(ctx).Where("id = ?", id)
	stmt = applyScopePredicates(stmt, tc, pol)
	result := stmt.Delete(&dummy)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) (*gorm.DB, error) {
	tc, pol, err := s.guard(ctx)
	if err != nil {
		return nil, err
	}

	stmt := s.db.WithContext(ctx)
	if filter != nil {
		stmt = stmt.Where(filter)
	}
	stmt = applyScopePredicates(stmt, tc, pol)

	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt, nil
}

// guard resolves the actor and the entity policy, rejecting role-denied
// combinations before any statement is built.
func (s *Store[T]) guard(ctx context.Context) (tenantctx.Context, Policy, error) {
	var zero T
	pol := zero.ScopePolicy()

	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return tenantctx.Context{}, pol, ErrContextNotEstablished
	}
	if pol.denies(tc.Role) {
		return tc, pol, fmt.Errorf("%w: role %s on %T", ErrAccessDenied, tc.Role, zero)
	}
	return tc, pol, nil
}

// applyScopePredicates conjoins the tenant (and owner) predicates onto the
// statement. Administrators pass through unmodified; they may cross tenants.
func applyScopePredicates(stmt *gorm.DB, tc tenantctx.Context, pol Policy) *gorm.DB {
	if pol.Class == Global || tc.IsAdmin() {
		return stmt
	}
	stmt = stmt.Where(fmt.Sprintf("%s = ?", pol.TenantColumn), tc.TenantID)
	if pol.Class == OwnerScoped && tc.Role == tenantctx.RoleEmployee {
		stmt = stmt.Where(fmt.Sprintf("%s = ?", pol.OwnerColumn), tc.ActorID)
	}
	return stmt
}

func stampScopeFields[T Entity](resource *T, tc tenantctx.Context, pol Policy) {
	if pol.Class == Global || tc.IsAdmin() {
		return
	}
	if stamped, ok := any(resource).(TenantStamped); ok {
		stamped.StampTenant(tc.TenantID)
	}
	if pol.Class == OwnerScoped && tc.Role == tenantctx.RoleEmployee {
		if stamped, ok := any(resource).(OwnerStamped); ok {
			stamped.StampOwner(tc.ActorID)
		}
	}
}

func stripScopeColumns(values map[string]any, pol Policy) {
	if values == nil {
		return
	}
	if pol.TenantColumn != "" {
		delete(values, pol.TenantColumn)
	}
	if pol.OwnerColumn != "" {
		delete(values, pol.OwnerColumn)
	}
}
