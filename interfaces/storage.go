package interfaces

import "context"

// StorageService archives raw RFC 822 messages under "<accountId>/<messageId>.eml".
type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}
