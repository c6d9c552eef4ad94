package ossstore

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRegion       = "cn-heyuan"
	defaultExportPrefix = "stuffing-exports"
	defaultInputPrefix  = "stuffing-inputs"
	defaultSignExpiry   = 10 * time.Minute
)

// Config describes the bucket that stuffing list exports and uploaded workbooks go to.
type Config struct {
	Bucket string
	Region string
	// InternalEndpoint is used for uploads from inside the VPC, PublicEndpoint for links
	// handed to browsers.
	InternalEndpoint string
	PublicEndpoint   string
	ExportPrefix     string
	InputPrefix      string
	SignExpiry       time.Duration
}

// ConfigFromEnv reads OSS_* variables. ok is false when OSS_BUCKET is unset, meaning
// archiving is off.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Bucket:           env("OSS_BUCKET"),
		Region:           env("OSS_REGION"),
		InternalEndpoint: env("OSS_ENDPOINT_INTERNAL"),
		PublicEndpoint:   env("OSS_ENDPOINT_PUBLIC"),
		ExportPrefix:     env("OSS_PREFIX"),
		InputPrefix:      env("OSS_INPUT_PREFIX"),
	}
	if n, err := strconv.ParseInt(env("OSS_SIGN_EXPIRE_SECONDS"), 10, 64); err == nil && n > 0 {
		cfg.SignExpiry = time.Duration(n) * time.Second
	}
	return cfg.withDefaults(), cfg.Bucket != ""
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		// AuthV4 signing needs a region.
		c.Region = defaultRegion
	}
	// A link signed for the internal endpoint cannot be opened from outside, so the public
	// endpoint wins for signing and either one fills in for the other.
	if c.PublicEndpoint == "" {
		c.PublicEndpoint = c.InternalEndpoint
	}
	if c.InternalEndpoint == "" {
		c.InternalEndpoint = c.PublicEndpoint
	}
	c.ExportPrefix = strings.Trim(c.ExportPrefix, "/")
	if c.ExportPrefix == "" {
		c.ExportPrefix = defaultExportPrefix
	}
	c.InputPrefix = strings.Trim(c.InputPrefix, "/")
	if c.InputPrefix == "" {
		c.InputPrefix = defaultInputPrefix
	}
	if c.SignExpiry <= 0 {
		c.SignExpiry = defaultSignExpiry
	}
	return c
}

func (c Config) validate() error {
	if c.Bucket == "" {
		return errors.New("OSS_BUCKET 为空")
	}
	if c.InternalEndpoint == "" && c.PublicEndpoint == "" {
		return errors.New("已设置 OSS_BUCKET，但缺少 OSS_ENDPOINT_INTERNAL/OSS_ENDPOINT_PUBLIC")
	}
	return nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }
