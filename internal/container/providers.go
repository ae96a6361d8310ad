package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/approvalflow/approvalflow/internal/application/dispatcher"
	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/application/service"
	"github.com/approvalflow/approvalflow/internal/config"
	"github.com/approvalflow/approvalflow/internal/domain/event"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
	"github.com/approvalflow/approvalflow/internal/infrastructure/authz"
	"github.com/approvalflow/approvalflow/internal/infrastructure/persistence/repository"
	httpapi "github.com/approvalflow/approvalflow/internal/interfaces/http"
	"github.com/approvalflow/approvalflow/pkg/database"
	"go.uber.org/zap"
)

// ProvideDatabase opens the SQLite database and applies pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(db, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return db, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Definition: repository.NewDefinitionRepository(sqlDB, logger),
		Instance:   repository.NewInstanceRepository(sqlDB, logger),
		Step:       repository.NewStepRepository(sqlDB, logger),
	}, nil
}

// ProvideAuthorizer builds the static authorizer from configuration.
func ProvideAuthorizer(cfg *config.AuthzConfig, logger *zap.Logger) (port.Authorizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("authz config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return authz.NewStaticAuthorizer(authz.Config{
		DefaultPermissions: cfg.DefaultPermissions,
		UserPermissions:    cfg.UserPermissions,
	}, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	Authorizer port.Authorizer
	Dispatcher dispatcher.Dispatcher
	Clock      workflow.Clock
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Definition: service.NewDefinitionService(
			deps.Repos.Definition,
			deps.Authorizer,
			deps.Dispatcher,
			deps.Clock,
			serviceLogger,
		),
		Workflow: service.NewWorkflowService(
			deps.Repos.Definition,
			deps.Repos.Instance,
			deps.Repos.Step,
			deps.Authorizer,
			deps.Dispatcher,
			deps.Clock,
			serviceLogger,
		),
	}, nil
}

// ProvideHTTPServer builds the HTTP server around the application services.
func ProvideHTTPServer(cfg *config.ServerConfig, services *ServiceBundle, logger *zap.Logger) (*httpapi.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serverCfg := httpapi.ServerConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return httpapi.NewServer(
		serverCfg,
		services.Definition,
		services.Workflow,
		&zapLoggerAdapter{logger: logger},
	), nil
}

// registerAuditHandler subscribes a handler that logs every domain event.
// Audit storage is out of scope; the structured log is the audit trail.
func registerAuditHandler(d dispatcher.Dispatcher, logger *zap.Logger) {
	handler := func(ctx context.Context, evt *event.Event) error {
		logger.Info("Domain event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("tenant_id", evt.TenantID.String()),
			zap.String("subject_id", evt.SubjectID.String()),
			zap.String("actor_id", evt.ActorID.String()),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload),
		)
		return nil
	}

	for _, eventType := range []event.Type{
		event.TypeDefinitionPublished,
		event.TypeWorkflowSubmitted,
		event.TypeWorkflowResubmitted,
		event.TypeStepDecided,
		event.TypeWorkflowCompleted,
	} {
		d.SubscribeNamed(eventType, "audit_log", handler)
	}
}
