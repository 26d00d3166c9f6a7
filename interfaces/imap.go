package interfaces

import (
	"context"

	"github.com/emersion/go-imap/client"

	"github.com/customeros/mailscope/dto"
)

type ConnectionPool interface {
	Acquire(ctx context.Context, identity string, params dto.ConnectionParams) (*client.Client, error)
	Release(identity string)
	ReleaseAll()
	Stats() PoolStats
}

type PoolStats struct {
	Open     int `json:"open"`
	Capacity int `json:"capacity"`
}

type MailboxFetcher interface {
	ListFolders(ctx context.Context, c *client.Client) ([]string, error)
	SelectFolder(ctx context.Context, c *client.Client, folder string) (uint32, error)
	FetchBatch(ctx context.Context, c *client.Client, folder string, limit, offset uint32) ([]*dto.RawMessage, error)
}
