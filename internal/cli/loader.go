package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/triql/internal/config"
	"github.com/roach88/triql/internal/engine"
	"github.com/roach88/triql/internal/queryir"
	"github.com/roach88/triql/internal/querysql"
	"github.com/roach88/triql/internal/schema"
	"github.com/roach88/triql/internal/store"
)

// Settings is the effective configuration of a command: the config file
// (or defaults) with flag overrides applied.
type Settings struct {
	Config  *config.Config
	Dialect querysql.Dialect
	Target  queryir.Target
}

// LoadError represents an error that occurred while loading settings.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSettings reads the config named by opts.Config and applies the
// global flag overrides.
func LoadSettings(opts *RootOptions) (*Settings, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, convertConfigError(opts.Config, err)
		}
		cfg = loaded
	}

	if opts.Dialect != "" {
		cfg.Dialect = opts.Dialect
	}
	if opts.Strict {
		cfg.StrictPagination = true
	}

	dialect, err := cfg.SQLDialect()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeFlag, Message: err.Error()}
	}

	target := queryir.TargetSQL
	if opts.Target != "" {
		target, err = queryir.ParseTarget(opts.Target)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeFlag, Message: err.Error()}
		}
	}

	return &Settings{Config: cfg, Dialect: dialect, Target: target}, nil
}

func convertConfigError(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return &LoadError{
			Code:    ErrCodeConfig,
			Message: fmt.Sprintf("%s: %s", cfgErr.Field, cfgErr.Message),
			Pos:     cfgErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeConfig, Message: err.Error()}
}

// backends holds the database connections a command opened.
type backends struct {
	sql       *store.SQL
	documents *store.Documents
}

// Close releases every open connection.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	if b.sql != nil {
		errs = append(errs, b.sql.Close())
	}
	if b.documents != nil {
		errs = append(errs, b.documents.Close(ctx))
	}
	return errors.Join(errs...)
}

// connect opens the databases the settings name for the selected target.
// The SQL database is also opened when INCLUDE hops must be resolved
// through its foreign keys.
func (s *Settings) connect(ctx context.Context, execute bool) (*backends, error) {
	b := &backends{}
	cfg := s.Config

	needSQL := cfg.SQL != nil && (len(cfg.Relations) == 0 || (execute && s.Target == queryir.TargetSQL))
	if needSQL {
		db, err := store.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeConnectFailed, Message: err.Error()}
		}
		b.sql = db
	}

	if execute && s.Target == queryir.TargetPipeline && cfg.Documents != nil {
		docs, err := store.OpenDocuments(ctx, cfg.Documents.URI, cfg.Documents.Database)
		if err != nil {
			_ = b.Close(ctx)
			return nil, &LoadError{Code: ErrCodeConnectFailed, Message: err.Error()}
		}
		b.documents = docs
	}
	return b, nil
}

// newEngine builds an engine over the settings and open backends. extra
// options are applied last.
func (s *Settings) newEngine(b *backends, logger *slog.Logger, extra ...engine.EngineOption) *engine.Engine {
	cfg := s.Config
	opts := []engine.EngineOption{
		engine.WithDialect(s.Dialect),
		engine.WithStrictPagination(cfg.StrictPagination),
		engine.WithMaxRows(cfg.MaxRows),
		engine.WithLogger(logger),
	}

	if resolver := s.resolver(b); resolver != nil {
		opts = append(opts, engine.WithResolver(resolver))
	}
	if b.sql != nil {
		opts = append(opts, engine.WithSQLExecutor(b.sql))
	}
	if b.documents != nil {
		opts = append(opts, engine.WithDocumentExecutor(b.documents))
	}
	return engine.New(append(opts, extra...)...)
}

// resolver returns the schema lookup for INCLUDE hops: the configured
// relations, else the SQL database's foreign keys, else nil.
func (s *Settings) resolver(b *backends) schema.Resolver {
	switch {
	case len(s.Config.Relations) > 0:
		return s.Config.Resolver()
	case b.sql != nil:
		return b.sql
	}
	return nil
}

// loadErrorCode returns the code and message of a settings error.
func loadErrorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, fmt.Sprintf("%s:%d:%d: %s",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), loadErr.Message)
		}
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// outputLoadError reports a settings error as a command error.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := loadErrorCode(err)
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, code, err)
}
