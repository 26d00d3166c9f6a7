package analyzer

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/time/rate"

	"github.com/customeros/mailscope/config"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/tracing"
)

// ProbeResult is the transport posture of one sending server.
type ProbeResult struct {
	SupportsTLS         bool
	HasValidCertificate bool
	CertificateDetails  *models.CertificateDetails
	IsOpenRelay         bool
}

type Prober interface {
	Probe(ctx context.Context, host string) ProbeResult
}

// SMTPProber runs the TLS and relay probes against a host, caching results per host.
type SMTPProber struct {
	cfg     *config.AnalyzerConfig
	log     logger.Logger
	cache   *expirable.LRU[string, ProbeResult]
	limiter *rate.Limiter
}

func NewSMTPProber(cfg *config.AnalyzerConfig, log logger.Logger) *SMTPProber {
	cacheSize := cfg.ProbeCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	limit := rate.Inf
	if cfg.ProbeRate > 0 {
		limit = rate.Limit(cfg.ProbeRate)
	}

	return &SMTPProber{
		cfg:     cfg,
		log:     log,
		cache:   expirable.NewLRU[string, ProbeResult](cacheSize, nil, cfg.ProbeCacheTTL),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *SMTPProber) Probe(ctx context.Context, host string) ProbeResult {
	if cached, ok := p.cache.Get(host); ok {
		return cached
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPProber.Probe")
	defer span.Finish()
	tracing.TagComponentProbe(span)
	span.SetTag("host", host)

	if err := p.limiter.Wait(ctx); err != nil {
		p.log.Debugf("Probe of %s skipped: %v", host, &mserrors.AnalysisError{Step: "probe_rate", Err: err})
		return ProbeResult{}
	}

	var result ProbeResult
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		supportsTLS, valid, details, err := p.probeTLS(ctx, host)
		if err != nil {
			p.log.Debugf("TLS probe of %s: %v", host, &mserrors.AnalysisError{Step: "tls_probe", Err: err})
		}
		result.SupportsTLS = supportsTLS
		result.HasValidCertificate = valid
		result.CertificateDetails = details
	}()

	go func() {
		defer wg.Done()
		openRelay, err := p.probeRelay(ctx, host)
		if err != nil {
			p.log.Debugf("Relay probe of %s: %v", host, &mserrors.AnalysisError{Step: "relay_probe", Err: err})
		}
		result.IsOpenRelay = openRelay
	}()

	wg.Wait()

	span.SetTag("supports_tls", result.SupportsTLS)
	span.SetTag("open_relay", result.IsOpenRelay)
	p.cache.Add(host, result)
	return result
}

// probeTLS upgrades a submission session with STARTTLS and inspects the peer certificate.
// Verification is skipped during the handshake so the certificate can be read even when it is invalid.
func (p *SMTPProber) probeTLS(ctx context.Context, host string) (bool, bool, *models.CertificateDetails, error) {
	c, err := p.openSession(ctx, host, p.cfg.TLSPort)
	if err != nil {
		return false, false, nil, err
	}
	defer c.Close()

	if err := c.Hello(p.heloName()); err != nil {
		return false, false, nil, fmt.Errorf("EHLO rejected: %w", err)
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return false, false, nil, fmt.Errorf("STARTTLS not offered")
	}
	if err := c.StartTLS(&tls.Config{InsecureSkipVerify: true, ServerName: host}); err != nil {
		return false, false, nil, fmt.Errorf("STARTTLS failed: %w", err)
	}

	state, ok := c.TLSConnectionState()
	if !ok || len(state.PeerCertificates) == 0 {
		return true, false, nil, nil
	}

	leaf := state.PeerCertificates[0]
	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, verifyErr := leaf.Verify(x509.VerifyOptions{
		DNSName:       host,
		Intermediates: intermediates,
	})

	_ = c.Quit()
	return true, verifyErr == nil, certificateDetails(leaf), nil
}

// probeRelay treats a server that accepts EHLO without advertising AUTH as an open relay.
func (p *SMTPProber) probeRelay(ctx context.Context, host string) (bool, error) {
	c, err := p.openSession(ctx, host, p.cfg.SMTPPort)
	if err != nil {
		return false, err
	}
	defer c.Close()

	if err := c.Hello(p.heloName()); err != nil {
		return false, fmt.Errorf("EHLO rejected: %w", err)
	}
	requiresAuth, _ := c.Extension("AUTH")

	_ = c.Quit()
	return !requiresAuth, nil
}

// openSession dials the host and reads the greeting. The whole session shares one deadline.
func (p *SMTPProber) openSession(ctx context.Context, host string, port int) (*smtp.Client, error) {
	timeout := p.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("greeting: %w", err)
	}
	return c, nil
}

func (p *SMTPProber) heloName() string {
	if p.cfg.HeloName == "" {
		return "localhost"
	}
	return p.cfg.HeloName
}

func certificateDetails(cert *x509.Certificate) *models.CertificateDetails {
	fingerprint := sha256.Sum256(cert.Raw)
	return &models.CertificateDetails{
		Issuer:      cert.Issuer.String(),
		Subject:     cert.Subject.String(),
		ValidFrom:   cert.NotBefore.UTC(),
		ValidTo:     cert.NotAfter.UTC(),
		Fingerprint: hex.EncodeToString(fingerprint[:]),
	}
}
