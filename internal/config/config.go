package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/triql/internal/querysql"
	"github.com/roach88/triql/internal/schema"
)

//go:embed schema.cue
var schemaSource string

// Config is the decoded #Config value.
type Config struct {
	Dialect          string            `json:"dialect"`
	StrictPagination bool              `json:"strict_pagination"`
	MaxRows          int               `json:"max_rows"`
	SQL              *SQLConfig        `json:"sql,omitempty"`
	Documents        *DocumentsConfig  `json:"documents,omitempty"`
	Relations        []schema.Relation `json:"relations"`
}

// SQLConfig selects the relational database queries run against.
type SQLConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// DocumentsConfig selects the document database pipelines run against.
type DocumentsConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// ConfigError reports an invalid config with its CUE position.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration an empty file produces.
func Default() *Config {
	cfg, err := decode(cuecontext.New().CompileString("{}"))
	if err != nil {
		// The embedded schema is fixed; an empty file always validates.
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	return cfg
}

// Load reads a config file, or every .cue file of the package in a
// directory, and validates it against #Config.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.IsDir() {
		return loadDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source. filename is used in error positions.
func Parse(src []byte, filename string) (*Config, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decode(v)
}

func loadDir(dir string) (*Config, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &ConfigError{Field: "load", Message: fmt.Sprintf("no CUE instances in %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &ConfigError{Field: "load", Message: fmt.Sprintf("loading %s: %v", filepath.Clean(dir), inst.Err)}
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decode(v)
}

// decode unifies v with #Config and decodes the concrete result.
func decode(v cue.Value) (*Config, error) {
	def := v.Context().CompileString(schemaSource, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if cfg.Relations == nil {
		cfg.Relations = []schema.Relation{}
	}
	return &cfg, nil
}

// SQLDialect returns the configured dialect.
func (c *Config) SQLDialect() (querysql.Dialect, error) {
	return querysql.ParseDialect(c.Dialect)
}

// Resolver returns a schema resolver over the configured relations.
func (c *Config) Resolver() *schema.Static {
	return schema.NewStatic(c.Relations...)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	path := "config"
	if p := first.Path(); len(p) > 0 {
		path = strings.Join(p, ".")
	}
	msg := first.Error()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, len(errs)-1)
	}

	var pos token.Pos
	if positions := errors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	return &ConfigError{Field: path, Message: msg, Pos: pos}
}
