package s3

import (
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether an endpoint is configured. The archive is optional.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func NewClient(cfg Config) (*minio.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return client, nil
}
