// Package objectstore connects to the S3-compatible bucket that receives
// template store snapshots.
package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/univer-labs/plugins-api/internal/platform/env"
)

type Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func ConfigFromEnv() (Config, error) {
	enabled, err := env.Bool("SNAPSHOT_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	useSSL, err := env.Bool("SNAPSHOT_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Enabled:   enabled,
		Endpoint:  env.Trimmed("SNAPSHOT_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: env.Trimmed("SNAPSHOT_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("SNAPSHOT_MINIO_SECRET_KEY", ""),
		Region:    env.Trimmed("SNAPSHOT_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.Trimmed("SNAPSHOT_BUCKET", "plugins-templates"),
		Prefix:    strings.Trim(env.Trimmed("SNAPSHOT_PREFIX", "snapshots"), "/"),
	}
	if cfg.Enabled {
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Validate lists every missing or malformed setting at once.
func (c Config) Validate() error {
	required := []struct{ name, value string }{
		{"SNAPSHOT_MINIO_ENDPOINT", c.Endpoint},
		{"SNAPSHOT_MINIO_ACCESS_KEY", c.AccessKey},
		{"SNAPSHOT_MINIO_SECRET_KEY", c.SecretKey},
		{"SNAPSHOT_MINIO_REGION", c.Region},
		{"SNAPSHOT_BUCKET", c.Bucket},
	}
	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required when SNAPSHOT_ENABLED=true", r.name))
		}
	}
	if strings.Contains(c.Endpoint, "://") {
		errs = append(errs, fmt.Errorf("SNAPSHOT_MINIO_ENDPOINT is host:port, drop the scheme from %q", c.Endpoint))
	}
	return errors.Join(errs...)
}
