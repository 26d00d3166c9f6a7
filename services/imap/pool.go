package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/interfaces"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/tracing"
)

const logoutTimeout = 5 * time.Second

type session struct {
	identity  string
	client    *client.Client
	createdAt time.Time
	freeOnce  sync.Once
}

// ConnectionPool caches one authenticated IMAP session per account identity.
// Only the cache is shared; a session is driven by a single sync run at a time.
type ConnectionPool struct {
	cfg      *config.IMAPConfig
	log      logger.Logger
	sessions map[string]*session
	mutex    sync.Mutex
	slots    chan struct{}
}

func NewConnectionPool(cfg *config.IMAPConfig, log logger.Logger) *ConnectionPool {
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &ConnectionPool{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*session),
		slots:    make(chan struct{}, maxSessions),
	}
}

func (p *ConnectionPool) Acquire(ctx context.Context, identity string, params dto.ConnectionParams) (*client.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ConnectionPool.Acquire")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)
	span.SetTag("identity", identity)

	p.mutex.Lock()
	cached := p.sessions[identity]
	p.mutex.Unlock()

	if cached != nil {
		if p.isAlive(cached.client) {
			span.SetTag("reused", true)
			return cached.client, nil
		}
		p.log.Warnf("[%s] Cached IMAP session failed liveness check, reconnecting", identity)
		p.evict(cached)
	}

	if err := p.acquireSlot(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, mserrors.NewConnectionError(identity, err)
	}

	c, err := p.connect(ctx, identity, params)
	if err != nil {
		<-p.slots
		tracing.TraceErr(span, err)
		p.log.Errorf("[%s] IMAP connect failed: %v", identity, err)
		return nil, mserrors.NewConnectionError(identity, err)
	}

	sess := &session{identity: identity, client: c, createdAt: time.Now()}

	p.mutex.Lock()
	if current, ok := p.sessions[identity]; ok {
		// another caller connected the same account first
		p.mutex.Unlock()
		p.closeSession(sess)
		return current.client, nil
	}
	p.sessions[identity] = sess
	p.mutex.Unlock()

	go p.watch(sess)

	p.log.Infof("[%s] IMAP session connected to %s", identity, params.Address())
	return c, nil
}

func (p *ConnectionPool) Release(identity string) {
	p.mutex.Lock()
	sess, ok := p.sessions[identity]
	if ok {
		delete(p.sessions, identity)
	}
	p.mutex.Unlock()

	if ok {
		p.closeSession(sess)
		p.log.Infof("[%s] IMAP session released", identity)
	}
}

func (p *ConnectionPool) ReleaseAll() {
	p.mutex.Lock()
	sessions := make([]*session, 0, len(p.sessions))
	for id, sess := range p.sessions {
		sessions = append(sessions, sess)
		delete(p.sessions, id)
	}
	p.mutex.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			p.closeSession(s)
		}(sess)
	}
	wg.Wait()

	p.log.Infof("Released %d IMAP sessions", len(sessions))
}

func (p *ConnectionPool) Stats() interfaces.PoolStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return interfaces.PoolStats{
		Open:     len(p.sessions),
		Capacity: cap(p.slots),
	}
}

func (p *ConnectionPool) acquireSlot(ctx context.Context) error {
	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return mserrors.ErrPoolExhausted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ConnectionPool) connect(ctx context.Context, identity string, params dto.ConnectionParams) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ConnectionPool.connect")
	defer span.Finish()
	tracing.TagComponentIMAP(span)
	span.SetTag("server", params.Host)
	span.SetTag("tls", params.TLS)
	span.SetTag("auth.method", params.AuthMethod.String())

	auth, err := newAuthenticator(params)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   p.cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	serverAddr := params.Address()
	if params.TLS {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: params.Host})
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.ErrorLog = zap.NewStdLog(p.log.Logger().With(zap.String("identity", identity)))
	c.Timeout = p.cfg.CommandTimeout

	if err := auth.authenticate(c); err != nil {
		terminate(c)
		return nil, fmt.Errorf("%s authentication failed: %w", auth.method(), err)
	}

	return c, nil
}

func (p *ConnectionPool) isAlive(c *client.Client) bool {
	if c.State() == imap.LogoutState {
		return false
	}
	return c.Noop() == nil
}

// watch evicts the session once the server closes the connection.
func (p *ConnectionPool) watch(sess *session) {
	<-sess.client.LoggedOut()

	p.mutex.Lock()
	current, ok := p.sessions[sess.identity]
	evicted := ok && current == sess
	if evicted {
		delete(p.sessions, sess.identity)
	}
	p.mutex.Unlock()

	p.freeSlot(sess)
	if evicted {
		p.log.Warnf("[%s] IMAP session closed by server", sess.identity)
	}
}

func (p *ConnectionPool) evict(sess *session) {
	p.mutex.Lock()
	if current, ok := p.sessions[sess.identity]; ok && current == sess {
		delete(p.sessions, sess.identity)
	}
	p.mutex.Unlock()
	p.closeSession(sess)
}

func (p *ConnectionPool) closeSession(sess *session) {
	terminate(sess.client)
	p.freeSlot(sess)
}

func (p *ConnectionPool) freeSlot(sess *session) {
	sess.freeOnce.Do(func() {
		<-p.slots
	})
}

// terminate logs out politely and drops the connection if the server does not answer in time.
func terminate(c *client.Client) {
	if c.State() == imap.LogoutState {
		return
	}
	done := make(chan error, 1)
	go func() {
		c.Timeout = logoutTimeout
		done <- c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			_ = c.Terminate()
		}
	case <-time.After(logoutTimeout):
		_ = c.Terminate()
	}
}
