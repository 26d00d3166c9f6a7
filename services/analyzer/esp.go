package analyzer

import (
	"strings"

	"github.com/customeros/mailscope/internal/enum"
)

const unknownESPName = "Custom/Unknown"

// ESPPattern lists the sending domains of one provider. A domain matches
// exactly or as a subdomain.
type ESPPattern struct {
	Name    string
	Domains []string
}

var defaultESPPatterns = []ESPPattern{
	{Name: "Gmail", Domains: []string{"gmail.com", "googlemail.com", "google.com"}},
	{Name: "Outlook", Domains: []string{"outlook.com", "hotmail.com", "live.com", "msn.com"}},
	{Name: "Yahoo", Domains: []string{"yahoo.com", "ymail.com", "yahoo.co.uk", "aol.com"}},
	{Name: "iCloud", Domains: []string{"icloud.com", "me.com", "mac.com"}},
	{Name: "ProtonMail", Domains: []string{"protonmail.com", "proton.me", "pm.me"}},
	{Name: "SendGrid", Domains: []string{"sendgrid.net", "sendgrid.com"}},
	{Name: "Mailgun", Domains: []string{"mailgun.org", "mailgun.net"}},
	{Name: "Amazon SES", Domains: []string{"amazonses.com"}},
	{Name: "Postmark", Domains: []string{"postmarkapp.com", "mtasv.net"}},
	{Name: "SparkPost", Domains: []string{"sparkpostmail.com", "sparkpost.com"}},
	{Name: "Mandrill", Domains: []string{"mandrillapp.com"}},
	{Name: "Mailchimp", Domains: []string{"mailchimp.com", "mcsv.net", "mcdlv.net", "rsgsv.net"}},
	{Name: "Constant Contact", Domains: []string{"constantcontact.com", "ctctcdn.com"}},
	{Name: "Klaviyo", Domains: []string{"klaviyo.com", "klaviyomail.com"}},
	{Name: "HubSpot", Domains: []string{"hubspot.com", "hubspotemail.net"}},
	{Name: "Campaign Monitor", Domains: []string{"createsend.com", "cmail19.com", "cmail20.com"}},
	{Name: "Brevo", Domains: []string{"brevo.com", "sendinblue.com"}},
	{Name: "Zendesk", Domains: []string{"zendesk.com"}},
	{Name: "Freshdesk", Domains: []string{"freshdesk.com"}},
	{Name: "Intercom", Domains: []string{"intercom.io", "intercom-mail.com"}},
	{Name: "Help Scout", Domains: []string{"helpscout.net"}},
	{Name: "Salesforce", Domains: []string{"salesforce.com", "exacttarget.com"}},
}

var defaultESPCategories = map[string]enum.ESPType{
	"Gmail":            enum.ESPWebmail,
	"Outlook":          enum.ESPWebmail,
	"Yahoo":            enum.ESPWebmail,
	"iCloud":           enum.ESPWebmail,
	"ProtonMail":       enum.ESPWebmail,
	"SendGrid":         enum.ESPTransactional,
	"Mailgun":          enum.ESPTransactional,
	"Amazon SES":       enum.ESPTransactional,
	"Postmark":         enum.ESPTransactional,
	"SparkPost":        enum.ESPTransactional,
	"Mandrill":         enum.ESPTransactional,
	"Mailchimp":        enum.ESPMarketing,
	"Constant Contact": enum.ESPMarketing,
	"Klaviyo":          enum.ESPMarketing,
	"HubSpot":          enum.ESPMarketing,
	"Campaign Monitor": enum.ESPMarketing,
	"Brevo":            enum.ESPMarketing,
	"Zendesk":          enum.ESPSupport,
	"Freshdesk":        enum.ESPSupport,
	"Intercom":         enum.ESPSupport,
	"Help Scout":       enum.ESPSupport,
}

type ESPClassifier struct {
	patterns   []ESPPattern
	categories map[string]enum.ESPType
}

func NewESPClassifier(patterns []ESPPattern, categories map[string]enum.ESPType) *ESPClassifier {
	normalized := make([]ESPPattern, 0, len(patterns))
	for _, p := range patterns {
		domains := make([]string, 0, len(p.Domains))
		for _, d := range p.Domains {
			domains = append(domains, strings.ToLower(strings.TrimSpace(d)))
		}
		normalized = append(normalized, ESPPattern{Name: p.Name, Domains: domains})
	}
	return &ESPClassifier{patterns: normalized, categories: categories}
}

func DefaultESPClassifier() *ESPClassifier {
	return NewESPClassifier(defaultESPPatterns, defaultESPCategories)
}

// Classify returns the category and provider name for a sending domain.
// The first pattern in table order wins.
func (c *ESPClassifier) Classify(domain string) (enum.ESPType, string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return enum.ESPCustom, unknownESPName
	}

	for _, p := range c.patterns {
		for _, d := range p.Domains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				if category, ok := c.categories[p.Name]; ok {
					return category, p.Name
				}
				return enum.ESPOther, p.Name
			}
		}
	}

	return enum.ESPCustom, unknownESPName
}
