package analyzer

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/net/idna"

	"github.com/customeros/mailscope/config"
	"github.com/customeros/mailscope/dto"
	mserrors "github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/logger"
	"github.com/customeros/mailscope/internal/models"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/internal/utils"
)

type MessageAnalyzer struct {
	log           logger.Logger
	classifier    *ESPClassifier
	prober        Prober
	probesEnabled bool
}

func NewMessageAnalyzer(cfg *config.AnalyzerConfig, log logger.Logger) *MessageAnalyzer {
	return newMessageAnalyzer(log, DefaultESPClassifier(), NewSMTPProber(cfg, log), cfg.ProbesEnabled)
}

func newMessageAnalyzer(log logger.Logger, classifier *ESPClassifier, prober Prober, probesEnabled bool) *MessageAnalyzer {
	return &MessageAnalyzer{
		log:           log,
		classifier:    classifier,
		prober:        prober,
		probesEnabled: probesEnabled,
	}
}

// Analyze enriches a fetched message. Every step degrades to an unknown or false
// value on failure, so the result is always storable.
func (a *MessageAnalyzer) Analyze(ctx context.Context, msg *dto.RawMessage) models.Analysis {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageAnalyzer.Analyze")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message_id", msg.MessageID)

	analysis := models.UnknownAnalysis()
	analysis.SearchableText = searchableText(msg)
	analysis.TimeDeltaMs = timeDeltaMs(msg)

	domain, err := sendingDomain(msg)
	if err != nil {
		a.log.Debugf("Message %s: %v", msg.MessageID, &mserrors.AnalysisError{Step: "domain", Err: err})
	}
	if domain == "" {
		return analysis
	}

	analysis.SendingDomain = domain
	analysis.ESPType, analysis.ESPName = a.classifier.Classify(domain)

	// derived from the domain alone, no MX or Received header lookup
	analysis.SendingServer = "mail." + domain
	span.SetTag("sending_server", analysis.SendingServer)

	if a.probesEnabled && a.prober != nil {
		result := a.prober.Probe(ctx, analysis.SendingServer)
		analysis.SupportsTLS = result.SupportsTLS
		analysis.HasValidCertificate = result.HasValidCertificate
		analysis.CertificateDetails = result.CertificateDetails
		analysis.IsOpenRelay = result.IsOpenRelay
	}

	return analysis
}

func sendingDomain(msg *dto.RawMessage) (string, error) {
	source := msg.FromAddress
	if source == "" {
		source = msg.FromHeader
	}

	domain := strings.ToLower(utils.ExtractDomainFromEmail(source))
	if domain == "" {
		return "", nil
	}

	ascii, err := idna.ToASCII(domain)
	if err != nil {
		return "", err
	}
	return ascii, nil
}

func timeDeltaMs(msg *dto.RawMessage) *int64 {
	if msg.InternalDate.IsZero() || msg.SentAt.IsZero() {
		return nil
	}
	delta := msg.InternalDate.Sub(msg.SentAt).Milliseconds()
	return &delta
}
