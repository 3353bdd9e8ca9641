package artifact

import (
	"fmt"
	"strings"

	"creditpolicy/internal/config"
)

// Open builds the Store selected by cfg.Store.
func Open(cfg config.ArtifactsConfig, s3cfg config.S3Config) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", "file":
		if strings.TrimSpace(cfg.Dir) == "" {
			return nil, fmt.Errorf("artifacts: dir is empty")
		}
		return NewStore(FileBlobs{Dir: cfg.Dir}, cfg.ThresholdsKey, cfg.ReportKey), nil
	case "s3":
		client := NewS3Client(S3Config{
			Endpoint:     s3cfg.Endpoint,
			Region:       s3cfg.Region,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		blobs, err := NewS3Blobs(client, s3cfg.Bucket, s3cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return NewStore(blobs, cfg.ThresholdsKey, cfg.ReportKey), nil
	default:
		return nil, fmt.Errorf("artifacts: unknown store %q", cfg.Store)
	}
}
