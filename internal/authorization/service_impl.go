package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// PlatformDomain is the enforcement domain for tenant-less platform actors.
const PlatformDomain = "platform"

const (
	ObjectOrganization = "organization"
	ObjectUser         = "user"
	ObjectEmployee     = "employee"
	ObjectAccount      = "account"
	ObjectTransaction  = "transaction"
	ObjectSummary      = "summary"
	ObjectGoal         = "goal"
	ObjectCoach        = "coach"
	ObjectSlot         = "slot"
	ObjectReservation  = "reservation"
)

const (
	ActionOrganizationView   = "organization.view"
	ActionOrganizationCreate = "organization.create"

	ActionUserView       = "user.view"
	ActionUserCreate     = "user.create"
	ActionUserDeactivate = "user.deactivate"

	ActionEmployeeView   = "employee.view"
	ActionEmployeeCreate = "employee.create"
	ActionEmployeeDelete = "employee.delete"

	ActionAccountView   = "account.view"
	ActionAccountCreate = "account.create"
	ActionAccountUpdate = "account.update"
	ActionAccountDelete = "account.delete"

	ActionTransactionView   = "transaction.view"
	ActionTransactionCreate = "transaction.create"
	ActionTransactionImport = "transaction.import"
	ActionTransactionDelete = "transaction.delete"

	ActionSummaryView    = "summary.view"
	ActionSummaryCompute = "summary.compute"

	ActionGoalView   = "goal.view"
	ActionGoalCreate = "goal.create"
	ActionGoalUpdate = "goal.update"
	ActionGoalDelete = "goal.delete"

	ActionCoachView   = "coach.view"
	ActionCoachCreate = "coach.create"
	ActionCoachManage = "coach.manage"

	ActionSlotView     = "slot.view"
	ActionSlotCreate   = "slot.create"
	ActionSlotWithdraw = "slot.withdraw"

	ActionReservationView     = "reservation.view"
	ActionReservationReserve  = "reservation.reserve"
	ActionReservationCancel   = "reservation.cancel"
	ActionReservationComplete = "reservation.complete"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(ctx, actor)
	if err != nil {
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if orgID == PlatformDomain {
		domain = PlatformDomain
	}
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, error) {
	if actor == "system" {
		return actor, "role:admin", nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", ErrInvalidActor
		}
		role, err := s.roleForUser(ctx, userID)
		if err != nil {
			return "", "", err
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM users
		 WHERE id = ? AND is_active = true
		 LIMIT 1`,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// HR manages the roster and sees org-level views.
		{"role:hr", ObjectUser, ActionUserView},
		{"role:hr", ObjectUser, ActionUserCreate},
		{"role:hr", ObjectUser, ActionUserDeactivate},
		{"role:hr", ObjectEmployee, ActionEmployeeView},
		{"role:hr", ObjectEmployee, ActionEmployeeCreate},
		{"role:hr", ObjectEmployee, ActionEmployeeDelete},
		{"role:hr", ObjectOrganization, ActionOrganizationView},

		// Employees own their financial data and book sessions.
		{"role:employee", ObjectAccount, ActionAccountView},
		{"role:employee", ObjectAccount, ActionAccountCreate},
		{"role:employee", ObjectAccount, ActionAccountUpdate},
		{"role:employee", ObjectAccount, ActionAccountDelete},
		{"role:employee", ObjectTransaction, ActionTransactionView},
		{"role:employee", ObjectTransaction, ActionTransactionCreate},
		{"role:employee", ObjectTransaction, ActionTransactionImport},
		{"role:employee", ObjectTransaction, ActionTransactionDelete},
		{"role:employee", ObjectSummary, ActionSummaryView},
		{"role:employee", ObjectSummary, ActionSummaryCompute},
		{"role:employee", ObjectGoal, ActionGoalView},
		{"role:employee", ObjectGoal, ActionGoalCreate},
		{"role:employee", ObjectGoal, ActionGoalUpdate},
		{"role:employee", ObjectGoal, ActionGoalDelete},
		{"role:employee", ObjectCoach, ActionCoachView},
		{"role:employee", ObjectSlot, ActionSlotView},
		{"role:employee", ObjectReservation, ActionReservationView},
		{"role:employee", ObjectReservation, ActionReservationReserve},
		{"role:employee", ObjectReservation, ActionReservationCancel},

		// Coaches publish slots and run their sessions.
		{"role:coach", ObjectCoach, ActionCoachView},
		{"role:coach", ObjectSlot, ActionSlotView},
		{"role:coach", ObjectSlot, ActionSlotCreate},
		{"role:coach", ObjectSlot, ActionSlotWithdraw},
		{"role:coach", ObjectReservation, ActionReservationView},
		{"role:coach", ObjectReservation, ActionReservationCancel},
		{"role:coach", ObjectReservation, ActionReservationComplete},
	}

	// Platform admins hold every capability in every domain.
	adminObjects := map[string][]string{
		ObjectOrganization: {ActionOrganizationView, ActionOrganizationCreate},
		ObjectUser:         {ActionUserView, ActionUserCreate, ActionUserDeactivate},
		ObjectEmployee:     {ActionEmployeeView, ActionEmployeeCreate, ActionEmployeeDelete},
		ObjectAccount:      {ActionAccountView, ActionAccountCreate, ActionAccountUpdate, ActionAccountDelete},
		ObjectTransaction:  {ActionTransactionView, ActionTransactionCreate, ActionTransactionImport, ActionTransactionDelete},
		ObjectSummary:      {ActionSummaryView, ActionSummaryCompute},
		ObjectGoal:         {ActionGoalView, ActionGoalCreate, ActionGoalUpdate, ActionGoalDelete},
		ObjectCoach:        {ActionCoachView, ActionCoachCreate, ActionCoachManage},
		ObjectSlot:         {ActionSlotView, ActionSlotCreate, ActionSlotWithdraw},
		ObjectReservation:  {ActionReservationView, ActionReservationCancel},
	}
	for object, actions := range adminObjects {
		for _, action := range actions {
			policies = append(policies, []string{"role:admin", object, action})
		}
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
