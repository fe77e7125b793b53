package agent

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nfrguard/nfrguard/events"
)

// piiPattern is one detector: a regex, a typed placeholder, and an optional
// validator to cut false positives.
type piiPattern struct {
	kind        string
	placeholder string
	re          *regexp.Regexp
	validate    func(match string) bool
}

// The pattern set is fixed configuration. Order matters: longer numeric
// shapes run first so a card number is not half-eaten by the TFN detector.
var piiPatterns = []piiPattern{
	{
		kind:        "email",
		placeholder: "<EMAIL>",
		re:          regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	},
	{
		kind:        "card_number",
		placeholder: "<CARD>",
		re:          regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`),
		validate:    luhnValid,
	},
	{
		kind:        "tax_file_number",
		placeholder: "<TFN>",
		re:          regexp.MustCompile(`\b\d{3}[ -]?\d{3}[ -]?\d{3}\b`),
	},
	{
		kind:        "phone",
		placeholder: "<PHONE>",
		re:          regexp.MustCompile(`(?:\+?61[ -]?|\b0)[23478](?:[ -]?\d){8}\b`),
	},
}

// Privacy scans log lines for PII and publishes sanitized copies. It never
// mutates the original stream.
type Privacy struct{}

// NewPrivacy builds the privacy handler.
func NewPrivacy() *Privacy { return &Privacy{} }

func (*Privacy) Name() string { return "data_privacy" }

func (*Privacy) Topics() []events.Type { return []events.Type{events.LogLine} }

func (p *Privacy) Handle(_ context.Context, env *events.Envelope) ([]*events.Envelope, error) {
	line, ok := env.Payload.(events.LogLinePayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T on %s", env.Payload, env.Type)
	}

	sanitized, findings := Sanitize(line.Line)
	if len(findings) == 0 {
		return nil, nil
	}

	return []*events.Envelope{
		events.New(env.CorrelationID, p.Name(), events.PrivacyViolationPayload{
			SourceComponent: line.SourceComponent,
			Findings:        findings,
			SanitizedLine:   sanitized,
		}),
	}, nil
}

// Sanitize returns a copy of the line with PII replaced by typed
// placeholders, plus one finding per replacement.
func Sanitize(line string) (string, []events.Finding) {
	var findings []events.Finding
	for _, p := range piiPatterns {
		line = p.re.ReplaceAllStringFunc(line, func(match string) string {
			if p.validate != nil && !p.validate(match) {
				return match
			}
			findings = append(findings, events.Finding{Kind: p.kind, Placeholder: p.placeholder})
			return p.placeholder
		})
	}
	return line, findings
}

// luhnValid runs the card checksum over the digits of match.
func luhnValid(match string) bool {
	var digits []int
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
