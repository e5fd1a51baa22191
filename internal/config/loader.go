package config

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. CRASHMAP_DATA_FILE.
const Prefix = "crashmap"

var tableName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_$#]*(\.[A-Za-z][A-Za-z0-9_$#]*)?$`)

// Load reads the given .env files (".env" when none are named), then the
// process environment, and validates the result. A missing .env file is not
// an error and values already in the environment are never overridden.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateListenAddr accepts host:port where the host may be empty and the
// port may be 0, which asks the kernel for a free port.
func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

// Validate checks struct tags and the rules that span sections.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("listen_addr", validateListenAddr); err != nil {
		return &ConfigError{Type: ErrValidation, Message: "failed to register validators", Err: err}
	}
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.Acquire.Paged {
		name := strings.ToLower(cfg.Data.File)
		if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".json.zst") {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "paged acquisition writes JSON; CRASHMAP_DATA_FILE must end in .json or .json.zst: " + cfg.Data.File,
			}
		}
	}
	if cfg.Data.Source == SourceOracle {
		if cfg.DB.Username == "" || cfg.DB.Password == "" {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "oracle source needs CRASHMAP_DB_USERNAME and CRASHMAP_DB_PASSWORD",
			}
		}
		if !tableName.MatchString(cfg.DB.Table) {
			return &ConfigError{
				Type:    ErrValidation,
				Message: "CRASHMAP_DB_TABLE is not a plain table name: " + cfg.DB.Table,
			}
		}
	}
	return nil
}
