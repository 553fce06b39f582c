// Package config loads service settings from an optional YAML file and the
// environment. A .env file in the working directory is loaded first, so its
// values count as environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/Lucifer7355/pdfmerge/utils"
)

// Delivery backends.
const (
	DeliveryLocal = "local"
	DeliveryR2    = "r2"
)

// Duration reads "100ms" style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	// MaxUploadBytes bounds one upload request; MaxMemoryBytes is how much of
	// it is kept in memory while parsing the multipart form.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`

	// MaxMerges is the number of merge sessions that may run at once across
	// all workspaces.
	MaxMerges int64 `yaml:"max_merges"`

	SpoolDir      string   `yaml:"spool_dir"`
	IdleTimeout   Duration `yaml:"idle_timeout"`
	SessionSecret string   `yaml:"session_secret"`

	Delivery     string   `yaml:"delivery"`
	ReleaseDelay Duration `yaml:"release_delay"`
	DownloadTTL  Duration `yaml:"download_ttl"`

	StrictValidation bool `yaml:"strict_validation"`

	R2 utils.R2Config `yaml:"r2"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		MaxUploadBytes: 200 << 20,
		MaxMemoryBytes: 20 << 20,
		MaxMerges:      4,
		IdleTimeout:    Duration(30 * time.Minute),
		Delivery:       DeliveryLocal,
		ReleaseDelay:   Duration(100 * time.Millisecond),
		DownloadTTL:    Duration(5 * time.Minute),
	}
}

// Load reads .env, then path (if not empty), then the environment. Later
// sources win.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("⚠️ .env file not found, relying on system env vars")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config file")
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var err error
	num := func(name string, dst *int64) {
		v, ok := lookup(name)
		if !ok || v == "" || err != nil {
			return
		}
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			err = errors.Wrapf(perr, "%s", name)
			return
		}
		*dst = n
	}
	dur := func(name string, dst *Duration) {
		v, ok := lookup(name)
		if !ok || v == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(v)
		if perr != nil {
			err = errors.Wrapf(perr, "%s", name)
			return
		}
		*dst = Duration(d)
	}
	flag := func(name string, dst *bool) {
		v, ok := lookup(name)
		if !ok || v == "" || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = errors.Wrapf(perr, "%s", name)
			return
		}
		*dst = b
	}

	str("PDFMERGE_ADDR", &c.Addr)
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Addr = ":" + port
	}
	str("PDFMERGE_LOG_LEVEL", &c.LogLevel)
	num("PDFMERGE_MAX_UPLOAD_BYTES", &c.MaxUploadBytes)
	num("PDFMERGE_MAX_MEMORY_BYTES", &c.MaxMemoryBytes)
	num("PDFMERGE_MAX_MERGES", &c.MaxMerges)
	str("PDFMERGE_SPOOL_DIR", &c.SpoolDir)
	dur("PDFMERGE_IDLE_TIMEOUT", &c.IdleTimeout)
	str("PDFMERGE_SESSION_SECRET", &c.SessionSecret)
	str("PDFMERGE_DELIVERY", &c.Delivery)
	dur("PDFMERGE_RELEASE_DELAY", &c.ReleaseDelay)
	dur("PDFMERGE_DOWNLOAD_TTL", &c.DownloadTTL)
	flag("PDFMERGE_STRICT_VALIDATION", &c.StrictValidation)

	str("R2_ACCESS_KEY_ID", &c.R2.AccessKeyID)
	str("R2_SECRET_ACCESS_KEY", &c.R2.SecretAccessKey)
	str("R2_ENDPOINT", &c.R2.Endpoint)
	str("R2_REGION", &c.R2.Region)
	str("R2_BUCKET", &c.R2.Bucket)
	str("R2_PUBLIC_BASE", &c.R2.PublicBase)
	return err
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.MaxUploadBytes <= 0 || c.MaxMemoryBytes <= 0 {
		return errors.New("upload limits must be positive")
	}
	if c.MaxMerges <= 0 {
		return errors.New("max_merges must be positive")
	}
	if c.ReleaseDelay <= 0 || c.DownloadTTL <= 0 || c.IdleTimeout <= 0 {
		return errors.New("durations must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	switch strings.ToLower(c.Delivery) {
	case DeliveryLocal:
	case DeliveryR2:
		if err := c.R2.Validate(); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown delivery %q (use %q or %q)", c.Delivery, DeliveryLocal, DeliveryR2)
	}
	return nil
}
