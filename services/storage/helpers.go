package storage

import (
	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/interfaces"
	"github.com/customeros/mailscope/services/storage/aws_client"
)

// NewR2StorageService returns nil when R2 credentials are not configured.
func NewR2StorageService(cfg *config.R2StorageConfig) interfaces.StorageService {
	if cfg == nil || cfg.AccountID == "" || cfg.AccessKeyID == "" {
		return nil
	}

	r2Client := aws_client.NewR2Client(aws_client.R2Config{
		AccountID:       cfg.AccountID,
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
	})

	return NewStorageService(r2Client, cfg.RawMessageBucket)
}
