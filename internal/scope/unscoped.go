package scope

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// UnscopedSystemStore bypasses every tenancy check. It exists for exactly two
// callers: administrative tooling and multi-statement work inside an already
// scoped transaction (authentication lookups, outbox claims, seeds). The name
// is deliberately loud; a scoped call path must never reach for this type,
// and new uses warrant review.
type UnscopedSystemStore[T any] struct {
	db *gorm.DB
}

// UnscopedSystemAccess opens the escape hatch. Callers own every scoping
// predicate themselves.
func UnscopedSystemAccess[T any](db *gorm.DB) *UnscopedSystemStore[T] {
	return &UnscopedSystemStore[T]{db: db}
}

func (s *UnscopedSystemStore[T]) WithTrx(tx *gorm.DB) *UnscopedSystemStore[T] {
	return &UnscopedSystemStore[T]{db: tx}
}

func (s *UnscopedSystemStore[T]) Find(ctx context.Context, query *T) ([]*T, error) {
	var result []*T
	err := s.db.WithContext(ctx).Where(query).Find(&result).Error
	return result, err
}

func (s *UnscopedSystemStore[T]) FindOne(ctx context.Context, query *T) (*T, error) {
	var result T
	err := s.db.WithContext(ctx).Where(query).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (s *UnscopedSystemStore[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *UnscopedSystemStore[T]) Update(ctx context.Context, id snowflake.ID, values map[string]any) error {
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(values).Error
}

func (s *UnscopedSystemStore[T]) Delete(ctx context.Context, id snowflake.ID) error {
	var dummy T
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&dummy).Error
}
