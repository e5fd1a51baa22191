// Package config loads crashmap settings from CRASHMAP_* environment
// variables, with a .env file as a fallback source.
package config

import (
	"fmt"
	"time"
)

// Source selects where crash records are read from.
const (
	SourceFile   = "file"
	SourceOracle = "oracle"
)

// Config is the full runtime configuration.
type Config struct {
	Log      LogConfig
	Data     DataConfig
	Acquire  AcquireConfig
	Render   RenderConfig
	Viewport ViewportConfig
	Regions  RegionsConfig
	DB       DBConfig
}

type LogConfig struct {
	Level     string `envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Format    string `envconfig:"FORMAT" default:"text" validate:"oneof=text json"`
	AddSource bool   `envconfig:"ADD_SOURCE" default:"false"`
}

type DataConfig struct {
	// File is the cached dataset. A .json suffix selects the JSON reader and
	// a trailing .zst means the file is zstd-compressed.
	File      string `envconfig:"FILE" default:"crash_locations.csv" validate:"required"`
	Delimiter string `envconfig:"DELIMITER" default:"," validate:"len=1"`
	Source    string `envconfig:"SOURCE" default:"file" validate:"oneof=file oracle"`
	ExportDir string `envconfig:"EXPORT_DIR" default:"." validate:"required"`
}

type AcquireConfig struct {
	URL            string        `envconfig:"URL" validate:"omitempty,url"`
	Paged          bool          `envconfig:"PAGED" default:"false"`
	PageSize       int           `envconfig:"PAGE_SIZE" default:"50000" validate:"gt=0"`
	LimitParam     string        `envconfig:"LIMIT_PARAM" default:"$limit" validate:"required"`
	OffsetParam    string        `envconfig:"OFFSET_PARAM" default:"$offset" validate:"required"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"30m" validate:"gt=0"`
	PagesPerSecond float64       `envconfig:"PAGES_PER_SECOND" default:"2" validate:"gte=0"`
}

type RenderConfig struct {
	CoarseThreshold int     `envconfig:"COARSE_THRESHOLD" default:"50000" validate:"gt=0,gtfield=MediumThreshold"`
	MediumThreshold int     `envconfig:"MEDIUM_THRESHOLD" default:"1000" validate:"gt=0"`
	CenterLat       float64 `envconfig:"CENTER_LAT" default:"-27.470457" validate:"gte=-90,lte=90"`
	CenterLon       float64 `envconfig:"CENTER_LON" default:"153.025974" validate:"gte=-180,lte=180"`
	Zoom            int     `envconfig:"ZOOM" default:"7" validate:"gte=0,lte=19"`
}

type ViewportConfig struct {
	Addr string `envconfig:"ADDR" default:"127.0.0.1:8765" validate:"listen_addr"`
}

type RegionsConfig struct {
	// Shapefile is optional; when empty no region attribute is added.
	Shapefile string `envconfig:"SHAPEFILE"`
	NameField string `envconfig:"NAME_FIELD" default:"NAME" validate:"required"`
}

// DBConfig holds the Oracle connection used when Data.Source is oracle.
type DBConfig struct {
	Host           string `envconfig:"HOST" default:"localhost"`
	Port           string `envconfig:"PORT" default:"1521" validate:"numeric"`
	Service        string `envconfig:"SERVICE" default:"XE"`
	Username       string `envconfig:"USERNAME"`
	Password       string `envconfig:"PASSWORD"`
	WalletLocation string `envconfig:"WALLET_LOCATION"`
	Table          string `envconfig:"TABLE" default:"CRASH_LOCATIONS" validate:"required"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrParsing indicates an environment value could not be converted to
	// its field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the populated struct broke a validation rule.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
