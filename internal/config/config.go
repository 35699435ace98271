package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type File struct {
	Version   int       `yaml:"version" json:"version"`
	Dashboard Dashboard `yaml:"dashboard" json:"dashboard"`
	Server    Server    `yaml:"server" json:"server"`
}

type Dashboard struct {
	APIURL           string        `yaml:"api_url" json:"api_url" validate:"omitempty,url"`
	Discover         bool          `yaml:"discover" json:"discover"`
	DiscoverTimeout  time.Duration `yaml:"discover_timeout" json:"discover_timeout" validate:"gte=0s"`
	QueueFilter      string        `yaml:"queue_filter,omitempty" json:"queue_filter,omitempty"`
	RetryAttempts    int           `yaml:"retry_attempts" json:"retry_attempts" validate:"gte=1,lte=10"`
	RetryDelay       time.Duration `yaml:"retry_delay" json:"retry_delay" validate:"gte=0s"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout" validate:"gte=1s"`
	StatsInterval    time.Duration `yaml:"stats_interval" json:"stats_interval" validate:"gte=100ms"`
	HistoryInterval  time.Duration `yaml:"history_interval" json:"history_interval" validate:"gte=100ms"`
	MinServerVersion string        `yaml:"min_server_version,omitempty" json:"min_server_version,omitempty"`
	TimeZone         string        `yaml:"time_zone,omitempty" json:"time_zone,omitempty"`
	MetricsAddr      string        `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	APIToken         string        `yaml:"api_token,omitempty" json:"-"`
}

type Server struct {
	Addr                  string        `yaml:"addr" json:"addr" validate:"required"`
	GRPCAddr              string        `yaml:"grpc_addr,omitempty" json:"grpc_addr,omitempty"`
	DBPath                string        `yaml:"db_path" json:"db_path" validate:"required"`
	RedisURL              string        `yaml:"redis_url,omitempty" json:"redis_url,omitempty" validate:"omitempty,url"`
	HistorySampleInterval time.Duration `yaml:"history_sample_interval" json:"history_sample_interval" validate:"gte=1s"`
	HistoryLimit          int           `yaml:"history_limit" json:"history_limit" validate:"gte=1,lte=10000"`
	VolumeHours           int           `yaml:"volume_hours" json:"volume_hours" validate:"gte=1,lte=168"`
	MDNS                  bool          `yaml:"mdns" json:"mdns"`
	MDNSInstance          string        `yaml:"mdns_instance,omitempty" json:"mdns_instance,omitempty"`
	Simulate              bool          `yaml:"simulate" json:"simulate"`
	// APIToken, when set, is required as a bearer token on /api/*.
	APIToken string `yaml:"api_token,omitempty" json:"-"`
}

func Default() File {
	return File{
		Version: 1,
		Dashboard: Dashboard{
			Discover:        true,
			DiscoverTimeout: 2 * time.Second,
			RetryAttempts:   3,
			RetryDelay:      2 * time.Second,
			RequestTimeout:  15 * time.Second,
			StatsInterval:   5 * time.Second,
			HistoryInterval: 60 * time.Second,
		},
		Server: Server{
			Addr:                  ":8114",
			GRPCAddr:              ":8115",
			DBPath:                "qwatch.db",
			HistorySampleInterval: time.Minute,
			HistoryLimit:          60,
			VolumeHours:           24,
			MDNS:                  true,
		},
	}
}

// Load reads an optional YAML file, applies QWATCH_* environment overrides
// and validates the result. An empty path yields the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	source := "defaults"
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := decodeInto(&cfg, data, path); err != nil {
			return cfg, err
		}
		source = path
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Parse decodes data over the defaults without consulting the environment.
func Parse(data []byte, source string) (File, error) {
	cfg := Default()
	if err := decodeInto(&cfg, data, source); err != nil {
		return cfg, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

func decodeInto(cfg *File, data []byte, source string) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse YAML in %q: %w", source, err)
	}
	return nil
}

func (cfg File) Validate() []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported config version %d", cfg.Version))
	}

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return append(errs, err.Error())
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), describeTag(fe)))
		}
	}

	if f := strings.TrimSpace(cfg.Dashboard.QueueFilter); f != "" && !doublestar.ValidatePattern(f) {
		errs = append(errs, fmt.Sprintf("dashboard.queue_filter invalid glob %q", f))
	}
	if tz := strings.TrimSpace(cfg.Dashboard.TimeZone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Sprintf("dashboard.time_zone unknown %q", tz))
		}
	}
	if strings.TrimSpace(cfg.Dashboard.APIURL) == "" && !cfg.Dashboard.Discover {
		errs = append(errs, "dashboard.api_url is required when dashboard.discover is false")
	}
	return errs
}

// Location returns the zone used for chart time labels.
func (d Dashboard) Location() *time.Location {
	tz := strings.TrimSpace(d.TimeZone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func structValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
