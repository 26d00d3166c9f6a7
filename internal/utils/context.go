package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

const (
	AppSourceMailscope = "mailscope"
	AppSourceCron      = "mailscope-cron"
	AppSourceCLI       = "mailscope-cli"
)

type CustomContext struct {
	AppSource string
	AccountID string
	RunID     string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		AccountID: c.Param("id"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetAccountIDFromContext(ctx context.Context) string {
	return GetContext(ctx).AccountID
}

func GetRunIDFromContext(ctx context.Context) string {
	return GetContext(ctx).RunID
}
