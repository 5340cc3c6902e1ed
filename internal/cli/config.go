package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/roach88/tsq/internal/runner"
	"github.com/roach88/tsq/internal/sqlbuild"
)

const (
	maxWalkDepth = 25
)

// Config represents the tsq configuration from tsq.yaml.
type Config struct {
	// Dialect restricts render and explain to one dialect; empty means all.
	Dialect    string `mapstructure:"dialect"`
	SchemasDir string `mapstructure:"schemas_dir"`

	// Database is used by the run command.
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		SchemasDir: "schemas",
		Database:   DatabaseConfig{Driver: "sqlite"},
	}
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	// TSQ_DATABASE_DSN overrides database.dsn.
	v.SetEnvPrefix("TSQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, configPath, err
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("dialect", def.Dialect)
	v.SetDefault("schemas_dir", def.SchemasDir)
	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.dsn", def.Database.DSN)
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for tsq.yaml or tsq.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"tsq.yaml", "tsq.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// Validate checks dialect and driver names, and parses mysql DSNs so that
// a malformed one is reported before any connection attempt.
func (c *Config) Validate() error {
	if c.Dialect != "" {
		if _, err := sqlbuild.LookupDialect(c.Dialect); err != nil {
			return fmt.Errorf("dialect: %w", err)
		}
	}
	d, err := sqlbuild.LookupDialect(c.Database.Driver)
	if err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if d.Name() == "mysql" && c.Database.DSN != "" {
		if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
			return fmt.Errorf("database.dsn: %w", err)
		}
	}
	return nil
}

// Dialects returns the dialects to render: the configured one, or all.
func (c *Config) Dialects() []string {
	if c.Dialect == "" {
		return nil
	}
	return []string{c.Dialect}
}

// RunnerConfig returns the database settings for the runner.
func (c *Config) RunnerConfig() runner.Config {
	return runner.Config{Driver: c.Database.Driver, DSN: c.Database.DSN}
}

// ResolvedSchemasDir returns the schemas directory given on the command
// line, falling back to schemas_dir.
func (c *Config) ResolvedSchemasDir(argDir string) string {
	if argDir != "" {
		return argDir
	}
	return c.SchemasDir
}
