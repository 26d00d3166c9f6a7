package analyzer

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailscope/config"
)

const (
	ehloOpen = "250-fake.test\r\n250 SIZE 1000\r\n"
	ehloAuth = "250-fake.test\r\n250-AUTH PLAIN LOGIN\r\n250 SIZE 1000\r\n"
	ehloTLS  = "250-fake.test\r\n250-STARTTLS\r\n250 SIZE 1000\r\n"
)

type fakeSMTPServer struct {
	ehloReply string
	tlsConfig *tls.Config
}

func (s *fakeSMTPServer) start(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return l.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	fmt.Fprint(conn, "220 fake.test ESMTP\r\n")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			fmt.Fprint(conn, s.ehloReply)
		case cmd == "STARTTLS" && s.tlsConfig != nil:
			fmt.Fprint(conn, "220 ready\r\n")
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			r = bufio.NewReader(conn)
		case cmd == "QUIT":
			fmt.Fprint(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprint(conn, "250 ok\r\n")
		}
	}
}

// closedPort returns a port with nothing listening on it.
func closedPort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func selfSignedConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "fake.test"},
		Issuer:       pkix.Name{CommonName: "fake.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"fake.test"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
}

func testProberConfig(tlsPort, smtpPort int) *config.AnalyzerConfig {
	return &config.AnalyzerConfig{
		ProbesEnabled:  true,
		ProbeTimeout:   time.Second,
		TLSPort:        tlsPort,
		SMTPPort:       smtpPort,
		ProbeCacheSize: 16,
		ProbeCacheTTL:  time.Minute,
		HeloName:       "mailscope.test",
	}
}

func TestSMTPProber_OpenRelay(t *testing.T) {
	port := (&fakeSMTPServer{ehloReply: ehloOpen}).start(t)
	prober := NewSMTPProber(testProberConfig(closedPort(t), port), getLogger())

	result := prober.Probe(context.Background(), "127.0.0.1")

	assert.True(t, result.IsOpenRelay)
	assert.False(t, result.SupportsTLS)
	assert.False(t, result.HasValidCertificate)
	assert.Nil(t, result.CertificateDetails)
}

func TestSMTPProber_RelayRequiresAuth(t *testing.T) {
	port := (&fakeSMTPServer{ehloReply: ehloAuth}).start(t)
	prober := NewSMTPProber(testProberConfig(closedPort(t), port), getLogger())

	result := prober.Probe(context.Background(), "127.0.0.1")

	assert.False(t, result.IsOpenRelay)
}

func TestSMTPProber_NoStartTLS(t *testing.T) {
	port := (&fakeSMTPServer{ehloReply: ehloAuth}).start(t)
	prober := NewSMTPProber(testProberConfig(port, closedPort(t)), getLogger())

	result := prober.Probe(context.Background(), "127.0.0.1")

	assert.False(t, result.SupportsTLS)
	assert.False(t, result.IsOpenRelay)
}

func TestSMTPProber_StartTLSWithSelfSignedCertificate(t *testing.T) {
	port := (&fakeSMTPServer{ehloReply: ehloTLS, tlsConfig: selfSignedConfig(t)}).start(t)
	prober := NewSMTPProber(testProberConfig(port, closedPort(t)), getLogger())

	result := prober.Probe(context.Background(), "127.0.0.1")

	assert.True(t, result.SupportsTLS)
	assert.False(t, result.HasValidCertificate)
	require.NotNil(t, result.CertificateDetails)
	assert.Contains(t, result.CertificateDetails.Subject, "fake.test")
	assert.Len(t, result.CertificateDetails.Fingerprint, 64)
	assert.True(t, result.CertificateDetails.ValidTo.After(result.CertificateDetails.ValidFrom))
}

func TestSMTPProber_SilentServerTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	var held []net.Conn
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()

	port := l.Addr().(*net.TCPAddr).Port
	cfg := testProberConfig(port, port)
	cfg.ProbeTimeout = 200 * time.Millisecond
	prober := NewSMTPProber(cfg, getLogger())

	startedAt := time.Now()
	result := prober.Probe(context.Background(), "127.0.0.1")

	assert.Less(t, time.Since(startedAt), 2*time.Second)
	assert.Equal(t, ProbeResult{}, result)
}

func TestSMTPProber_CachesPerHost(t *testing.T) {
	server := &fakeSMTPServer{ehloReply: ehloOpen}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go server.serve(conn)
		}
	}()

	prober := NewSMTPProber(testProberConfig(closedPort(t), l.Addr().(*net.TCPAddr).Port), getLogger())
	first := prober.Probe(context.Background(), "127.0.0.1")
	require.True(t, first.IsOpenRelay)

	require.NoError(t, l.Close())
	second := prober.Probe(context.Background(), "127.0.0.1")
	assert.Equal(t, first, second)
}
