package imap

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

// startTestServer runs an in-memory IMAP server holding one INBOX message for username/password.
func startTestServer(t *testing.T) dto.ConnectionParams {
	t.Helper()

	s := server.New(memory.New())
	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = s.Serve(l)
	}()
	t.Cleanup(func() {
		_ = s.Close()
	})

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return dto.ConnectionParams{
		Host:       host,
		Port:       port,
		Username:   "username",
		Password:   "password",
		AuthMethod: enum.AuthMethodPassword,
		TLS:        false,
	}
}

func testPoolConfig(maxSessions int) *config.IMAPConfig {
	return &config.IMAPConfig{
		MaxSessions:    maxSessions,
		AcquireTimeout: 200 * time.Millisecond,
		DialTimeout:    2 * time.Second,
		CommandTimeout: 5 * time.Second,
	}
}
