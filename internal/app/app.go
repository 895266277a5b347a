// Package app wires configuration, storage and HTTP into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/config"
	"github.com/router-for-me/PersistedObjects/internal/crud"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/events"
	internalhttp "github.com/router-for-me/PersistedObjects/internal/http"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/schema"
	"github.com/router-for-me/PersistedObjects/internal/security"
	"github.com/router-for-me/PersistedObjects/internal/settings"
	"github.com/router-for-me/PersistedObjects/internal/store"
	"github.com/router-for-me/PersistedObjects/internal/ui"
	"github.com/router-for-me/PersistedObjects/internal/webui"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server is a fully wired instance ready to serve.
type Server struct {
	Config    config.AppConfig
	DB        *gorm.DB
	Registry  *model.Registry
	Services  map[string]*crud.Service // Keyed by table name.
	Settings  *settings.Snapshot       // Nil when the built-in catalog is disabled.
	Engine    *gin.Engine
	publisher *events.RedisPublisher
}

// Close releases the database and the event publisher.
func (s *Server) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// LoadRegistry registers the built-in catalog (when enabled) followed by the models in
// cfg.Models.Dir, in file name order.
func LoadRegistry(cfg config.AppConfig) (*model.Registry, error) {
	registry := model.NewRegistry()
	if cfg.Models.Builtin {
		for _, def := range builtinModels(cfg.Encryption.Configured()) {
			if err := registry.Register(def); err != nil {
				return nil, err
			}
		}
	}
	if dir := strings.TrimSpace(cfg.Models.Dir); dir != "" {
		defs, err := model.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if err = registry.Register(def); err != nil {
				return nil, err
			}
		}
	}
	if registry.Len() == 0 {
		return nil, apperrors.Config("", "no models configured; enable models.builtin or set models.dir")
	}
	return registry, nil
}

// newCipher returns the JSON cipher, or nil when no model needs one.
func newCipher(cfg config.AppConfig, registry *model.Registry) (*security.JSONCipher, error) {
	if !cfg.Encryption.Configured() {
		if registry.AnyEncrypted() {
			return nil, apperrors.Config("", "a model sets encrypt_json but PERSISTED_OBJECT_ENCRYPTION_KEY and PERSISTED_OBJECT_ENCRYPTION_SALT are not both set")
		}
		return nil, nil
	}
	return security.NewJSONCipher(cfg.Encryption.Key, cfg.Encryption.Salt)
}

// Migrate opens the database and creates the system and model tables.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	registry, err := LoadRegistry(cfg)
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		defer sqlDB.Close()
	}
	if err = db.Migrate(conn); err != nil {
		return err
	}
	tables, err := schema.NewMaterializer(conn, schema.WithSnapshots()).MaterializeAll(ctx, registry)
	if err != nil {
		return err
	}
	log.Infof("migrated %d model tables", len(tables))
	return nil
}

// Build opens the database, materializes every registered model and assembles the engine.
// Any configuration error aborts startup.
func Build(ctx context.Context, cfg config.AppConfig) (*Server, error) {
	registry, err := LoadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	cipher, err := newCipher(cfg, registry)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	srv := &Server{Config: cfg, DB: conn, Registry: registry, Services: map[string]*crud.Service{}}
	fail := func(err error) (*Server, error) {
		_ = srv.Close()
		return nil, err
	}

	if err = db.Migrate(conn); err != nil {
		return fail(err)
	}
	materializer := schema.NewMaterializer(conn, schema.WithSnapshots())
	if _, err = materializer.MaterializeAll(ctx, registry); err != nil {
		return fail(err)
	}

	if url := strings.TrimSpace(cfg.Events.RedisURL); url != "" {
		publisher, errPub := events.NewRedisPublisher(url, cfg.Events.Channel)
		if errPub != nil {
			return fail(errPub)
		}
		srv.publisher = publisher
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if errPing := publisher.Ping(pingCtx); errPing != nil {
			log.WithError(errPing).Warn("redis unreachable; change events will be retried per write")
		}
		cancel()
	}

	var perms crud.Permissions
	if cfg.Auth.Enabled() {
		perms = crud.AuthenticatedWrites(cfg.Auth.WriteRoles...)
	}

	services := make([]*crud.Service, 0, registry.Len())
	for _, def := range registry.All() {
		st, errStore := store.New(conn, materializer, def, store.WithCipher(cipher))
		if errStore != nil {
			return fail(errStore)
		}
		opts := []crud.ServiceOption{crud.WithPermissions(perms), crud.WithHooks(hooksFor(cfg, def))}
		if def.Table() == tableAppSettings && cfg.Models.Builtin {
			srv.Settings = settings.NewSnapshot(st)
			opts = append(opts, crud.WithHooks(srv.Settings.Hooks()))
		}
		if srv.publisher != nil {
			opts = append(opts, crud.WithHooks(events.Hooks(srv.publisher, def)))
		}
		svc := crud.NewService(st, opts...)
		srv.Services[def.Table()] = svc
		services = append(services, svc)
	}

	if cfg.Models.Builtin && cfg.Models.Seed {
		if err = seed(ctx, srv.Services); err != nil {
			return fail(err)
		}
	}
	if srv.Settings != nil {
		if err = srv.Settings.Refresh(ctx); err != nil {
			return fail(err)
		}
	}

	if mode := strings.TrimSpace(cfg.Server.Mode); mode != "" {
		gin.SetMode(mode)
	}
	engineOpts := internalhttp.EngineOptions{
		DB:        conn,
		Registry:  registry,
		Services:  services,
		Renderers: ui.NewRegistry(),
		APIPrefix: cfg.Server.APIPrefix,
		JWTSecret: cfg.Auth.JWTSecret,
	}
	if srv.Settings != nil {
		engineOpts.SiteName = srv.Settings.SiteName
	}
	if dir := strings.TrimSpace(cfg.Server.WebUIDir); dir != "" {
		bundle, errBundle := webui.Load(dir)
		if errBundle != nil {
			return fail(errBundle)
		}
		engineOpts.WebUI = bundle
	}
	srv.Engine = internalhttp.NewEngine(engineOpts)
	return srv, nil
}

// hooksFor returns the catalog hooks of built-in models and HashPasswords for the rest.
func hooksFor(cfg config.AppConfig, def *model.Definition) crud.Hooks {
	if cfg.Models.Builtin {
		if hooks, ok := builtinHooks(def); ok {
			return hooks
		}
	}
	return crud.HashPasswords(def)
}

// RunServer builds the server and serves until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	srv, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":   cfg.Server.Addr,
			"prefix": cfg.Server.APIPrefix,
			"models": srv.Registry.Len(),
		}).Info("serving persisted objects")
		if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		if errServe != nil {
			return fmt.Errorf("http server: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
