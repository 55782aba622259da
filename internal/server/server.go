package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fiscoach/fiscoach/internal/account"
	accountdomain "github.com/fiscoach/fiscoach/internal/account/domain"
	"github.com/fiscoach/fiscoach/internal/authorization"
	"github.com/fiscoach/fiscoach/internal/booking"
	bookingdomain "github.com/fiscoach/fiscoach/internal/booking/domain"
	"github.com/fiscoach/fiscoach/internal/clock"
	"github.com/fiscoach/fiscoach/internal/coach"
	coachdomain "github.com/fiscoach/fiscoach/internal/coach/domain"
	"github.com/fiscoach/fiscoach/internal/config"
	"github.com/fiscoach/fiscoach/internal/employee"
	employeedomain "github.com/fiscoach/fiscoach/internal/employee/domain"
	"github.com/fiscoach/fiscoach/internal/goal"
	goaldomain "github.com/fiscoach/fiscoach/internal/goal/domain"
	"github.com/fiscoach/fiscoach/internal/meeting"
	"github.com/fiscoach/fiscoach/internal/notification"
	"github.com/fiscoach/fiscoach/internal/observability"
	obsmiddleware "github.com/fiscoach/fiscoach/internal/observability/logger"
	obsmetrics "github.com/fiscoach/fiscoach/internal/observability/metrics"
	obstracing "github.com/fiscoach/fiscoach/internal/observability/tracing"
	"github.com/fiscoach/fiscoach/internal/organization"
	organizationdomain "github.com/fiscoach/fiscoach/internal/organization/domain"
	"github.com/fiscoach/fiscoach/internal/providers"
	"github.com/fiscoach/fiscoach/internal/ratelimit"
	"github.com/fiscoach/fiscoach/internal/summary"
	summarydomain "github.com/fiscoach/fiscoach/internal/summary/domain"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	"github.com/fiscoach/fiscoach/internal/transaction"
	transactiondomain "github.com/fiscoach/fiscoach/internal/transaction/domain"
	"github.com/fiscoach/fiscoach/internal/user"
	userdomain "github.com/fiscoach/fiscoach/internal/user/domain"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	fx.Provide(registerGin),
	authorization.Module,
	organization.Module,
	user.Module,
	employee.Module,
	account.Module,
	transaction.Module,
	summary.Module,
	goal.Module,
	coach.Module,
	meeting.Module,
	providers.Module,
	notification.Module,
	booking.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	authzSvc        authorization.Service
	organizationSvc organizationdomain.Service
	usersvc         userdomain.Service
	employeeSvc     employeedomain.Service
	accountSvc      accountdomain.Service
	transactionSvc  transactiondomain.Service
	summarySvc      summarydomain.Service
	goalSvc         goaldomain.Service
	coachSvc        coachdomain.Service
	bookingSvc      bookingdomain.Service

	reserveLimiter *ratelimit.ReserveLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	AuthzSvc        authorization.Service
	OrganizationSvc organizationdomain.Service
	UserSvc         userdomain.Service
	EmployeeSvc     employeedomain.Service
	AccountSvc      accountdomain.Service
	TransactionSvc  transactiondomain.Service
	SummarySvc      summarydomain.Service
	GoalSvc         goaldomain.Service
	CoachSvc        coachdomain.Service
	BookingSvc      bookingdomain.Service

	ReserveLimiter *ratelimit.ReserveLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		organizationSvc: p.OrganizationSvc,
		usersvc:         p.UserSvc,
		employeeSvc:     p.EmployeeSvc,
		accountSvc:      p.AccountSvc,
		transactionSvc:  p.TransactionSvc,
		summarySvc:      p.SummarySvc,
		goalSvc:         p.GoalSvc,
		coachSvc:        p.CoachSvc,
		bookingSvc:      p.BookingSvc,
		reserveLimiter:  p.ReserveLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.AuthRequired())

	// -------- Organizations --------
	api.POST("/organizations", s.authorizeAction(authorization.ObjectOrganization, authorization.ActionOrganizationCreate), s.CreateOrganization)
	api.GET("/organizations", s.authorizeAction(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.ListOrganizations)
	api.GET("/organizations/:id", s.authorizeAction(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganization)

	// -------- Users --------
	api.POST("/users", s.authorizeAction(authorization.ObjectUser, authorization.ActionUserCreate), s.CreateUser)
	api.GET("/users", s.authorizeAction(authorization.ObjectUser, authorization.ActionUserView), s.ListUsers)
	api.GET("/users/:id", s.authorizeAction(authorization.ObjectUser, authorization.ActionUserView), s.GetUserByID)
	api.POST("/users/:id/deactivate", s.authorizeAction(authorization.ObjectUser, authorization.ActionUserDeactivate), s.DeactivateUser)

	// -------- Employee profiles --------
	api.POST("/employees", s.authorizeAction(authorization.ObjectEmployee, authorization.ActionEmployeeCreate), s.CreateEmployee)
	api.GET("/employees", s.authorizeAction(authorization.ObjectEmployee, authorization.ActionEmployeeView), s.ListEmployees)
	api.GET("/employees/:id", s.authorizeAction(authorization.ObjectEmployee, authorization.ActionEmployeeView), s.GetEmployeeByID)
	api.DELETE("/employees/:id", s.authorizeAction(authorization.ObjectEmployee, authorization.ActionEmployeeDelete), s.DeleteEmployee)

	// -------- Accounts --------
	api.POST("/accounts", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountCreate), s.CreateAccount)
	api.GET("/accounts", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountView), s.ListAccounts)
	api.GET("/accounts/:id", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountView), s.GetAccountByID)
	api.PATCH("/accounts/:id", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountUpdate), s.UpdateAccount)
	api.DELETE("/accounts/:id", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountDelete), s.DeleteAccount)

	// -------- Transactions --------
	api.POST("/transactions", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionCreate), s.CreateTransaction)
	api.GET("/transactions", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionView), s.ListTransactions)
	api.GET("/transactions/:id", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionView), s.GetTransactionByID)
	api.DELETE("/transactions/:id", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionDelete), s.DeleteTransaction)
	api.POST("/transactions/import", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionImport), s.ImportTransactions)
	api.GET("/transactions/batches", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionView), s.ListBatches)
	api.GET("/transactions/batches/:id", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionView), s.GetBatchByID)

	// -------- Monthly summaries --------
	api.POST("/summaries/:month/compute", s.authorizeAction(authorization.ObjectSummary, authorization.ActionSummaryCompute), s.ComputeSummary)
	api.GET("/summaries/:month", s.authorizeAction(authorization.ObjectSummary, authorization.ActionSummaryView), s.GetSummary)
	api.GET("/summaries", s.authorizeAction(authorization.ObjectSummary, authorization.ActionSummaryView), s.ListSummaries)

	// -------- Goals --------
	api.POST("/goals", s.authorizeAction(authorization.ObjectGoal, authorization.ActionGoalCreate), s.CreateGoal)
	api.GET("/goals", s.authorizeAction(authorization.ObjectGoal, authorization.ActionGoalView), s.ListGoals)
	api.GET("/goals/:id", s.authorizeAction(authorization.ObjectGoal, authorization.ActionGoalView), s.GetGoalByID)
	api.PATCH("/goals/:id", s.authorizeAction(authorization.ObjectGoal, authorization.ActionGoalUpdate), s.UpdateGoal)
	api.DELETE("/goals/:id", s.authorizeAction(authorization.ObjectGoal, authorization.ActionGoalDelete), s.DeleteGoal)

	// -------- Coaches --------
	api.POST("/coaches", s.authorizeAction(authorization.ObjectCoach, authorization.ActionCoachCreate), s.CreateCoach)
	api.GET("/coaches", s.authorizeAction(authorization.ObjectCoach, authorization.ActionCoachView), s.ListCoaches)
	api.GET("/coaches/:id", s.authorizeAction(authorization.ObjectCoach, authorization.ActionCoachView), s.GetCoachByID)
	api.POST("/coaches/:id/deactivate", s.authorizeAction(authorization.ObjectCoach, authorization.ActionCoachManage), s.DeactivateCoach)

	// -------- Slots --------
	api.POST("/slots", s.RequireRole(tenantctx.RoleCoach), s.CreateSlot)
	api.GET("/slots", s.authorizeAction(authorization.ObjectSlot, authorization.ActionSlotView), s.ListSlots)
	api.POST("/slots/:id/withdraw", s.RequireRole(tenantctx.RoleCoach), s.WithdrawSlot)

	// -------- Reservations --------
	api.POST("/slots/:id/reserve", s.RequireRole(tenantctx.RoleEmployee), s.ReserveRateLimit(), s.ReserveSlot)
	api.GET("/reservations", s.ListReservations)
	api.GET("/reservations/:id", s.GetReservation)
	api.POST("/reservations/:id/cancel", s.CancelReservation)
	api.POST("/reservations/:id/complete", s.RequireRole(tenantctx.RoleCoach), s.CompleteReservation)
}
