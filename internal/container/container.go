// Package container provides dependency injection and lifecycle management
// for the approval workflow engine following Clean Architecture principles.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/approvalflow/approvalflow/internal/application/dispatcher"
	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/application/service"
	"github.com/approvalflow/approvalflow/internal/config"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
	httpapi "github.com/approvalflow/approvalflow/internal/interfaces/http"
	"github.com/approvalflow/approvalflow/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in
// reverse order.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db           *database.DB
	repositories *RepositoryBundle
	authorizer   port.Authorizer

	// Application
	clock      workflow.Clock
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Interfaces
	server     *httpapi.Server
	serverDone chan error

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Definition port.DefinitionRepository
	Instance   port.InstanceRepository
	Step       port.StepRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Definition service.DefinitionService
	Workflow   service.WorkflowService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins serving.
// Components are initialized in dependency order:
// 1. Database, migrations and repositories
// 2. Authorizer
// 3. Event dispatcher and audit handler
// 4. Application services
// 5. HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database, migrations and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize authorizer
	if err := c.initAuthorizer(); err != nil {
		return fmt.Errorf("failed to initialize authorizer: %w", err)
	}
	c.logger.Info("Authorizer initialized")

	// Step 3: Initialize dispatcher and audit handler
	if err := c.initDispatcher(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.logger.Info("Dispatcher initialized")

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start HTTP server
	if err := c.initServer(); err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}
	c.logger.Info("HTTP server started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines. The HTTP server listens on
	// this context and begins its graceful shutdown.
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Wait for the HTTP server to drain (reverse of step 5)
	if c.serverDone != nil {
		if err := <-c.serverDone; err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		} else {
			c.logger.Info("HTTP server stopped")
		}
	}

	// Step 2: Services don't need explicit cleanup (reverse of step 4)

	// Step 3: Close dispatcher (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 4: Authorizer doesn't need explicit cleanup (reverse of step 2)

	// Step 5: Close database (reverse of step 1)
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.db != nil {
		if err := c.db.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check repositories
	if c.repositories != nil {
		status.Components["repositories"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["repositories"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check dispatcher
	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check HTTP server
	if c.server != nil {
		status.Components["http_server"] = ComponentHealth{
			Healthy: true,
			Message: c.server.Address(),
		}
	} else {
		status.Components["http_server"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// initDatabase opens the database, applies migrations and builds repositories.
func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	repos, err := ProvideRepositories(db.DB, c.logger)
	if err != nil {
		db.Close()
		return err
	}
	c.repositories = repos

	return nil
}

// initAuthorizer builds the static permission table from configuration.
func (c *Container) initAuthorizer() error {
	authorizer, err := ProvideAuthorizer(&c.config.Authz, c.logger)
	if err != nil {
		return err
	}
	c.authorizer = authorizer
	return nil
}

// initDispatcher builds the event dispatcher and registers the audit handler.
func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	registerAuditHandler(disp, c.logger)
	return nil
}

// initServices builds the application services.
func (c *Container) initServices() error {
	c.clock = workflow.SystemClock{}

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		Authorizer: c.authorizer,
		Dispatcher: c.dispatcher,
		Clock:      c.clock,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

// initServer builds the HTTP server and starts serving in the background.
// The server shuts down when the container's context is canceled; Close
// waits on serverDone so the listener is drained before the database goes.
func (c *Container) initServer() error {
	server, err := ProvideHTTPServer(&c.config.Server, c.services, c.logger)
	if err != nil {
		return err
	}
	c.server = server
	c.serverDone = make(chan error, 1)

	go func() {
		err := server.Start(c.ctx)
		if err != nil {
			c.logger.Error("HTTP server exited", zap.Error(err))
		}
		c.serverDone <- err
	}()

	return nil
}

// Getters for accessing container components

// DB returns the database handle.
func (c *Container) DB() *database.DB {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Authorizer returns the authorizer.
func (c *Container) Authorizer() port.Authorizer {
	return c.authorizer
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the keysAndValues logger interfaces
// declared by the service and http packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
