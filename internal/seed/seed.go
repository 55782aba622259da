package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	organizationdomain "github.com/fiscoach/fiscoach/internal/organization/domain"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	userdomain "github.com/fiscoach/fiscoach/internal/user/domain"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
)

// EnsureDefaultOrg seeds the default organization for startup bootstrap.
func EnsureDefaultOrg(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureDefaultOrgTx(ctx, tx, node)
		return err
	})
}

// EnsureAdmin seeds the platform administrator when a bootstrap token is
// configured. The token is stored hashed, same as issued tokens.
func EnsureAdmin(db *gorm.DB, email, rawToken string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	rawToken = strings.TrimSpace(rawToken)
	if email == "" || rawToken == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userdomain.User
		err := tx.WithContext(ctx).Where("email = ?", email).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		admin := userdomain.User{
			ID:          node.Generate(),
			Email:       email,
			DisplayName: "Platform Admin",
			Role:        tenantctx.RoleAdmin,
			TokenHash:   userdomain.HashToken(rawToken),
			IsActive:    true,
		}
		return tx.WithContext(ctx).Create(&admin).Error
	})
}

func ensureDefaultOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (organizationdomain.Organization, error) {
	var existing organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&existing).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return organizationdomain.Organization{}, err
	}

	org := organizationdomain.Organization{
		ID:           node.Generate(),
		Name:         defaultOrgName,
		Slug:         defaultOrgSlug,
		ContactEmail: "admin@fiscoach.local",
		IsDefault:    true,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return organizationdomain.Organization{}, err
	}
	return org, nil
}
