package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dripwire/dripwire-backend/pkg/config"
)

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// Instrumenter rewrites outgoing HTML so engagement flows back through the
// tracking endpoints. With no secret configured it passes bodies through
// untouched.
type Instrumenter struct {
	cfg config.TrackingConfig
}

// NewInstrumenter builds an instrumenter from tracking config.
func NewInstrumenter(cfg config.TrackingConfig) *Instrumenter {
	return &Instrumenter{cfg: cfg}
}

// Enabled reports whether tracking is configured at all.
func (i *Instrumenter) Enabled() bool {
	return i.cfg.Secret != "" && i.cfg.BaseURL != ""
}

// Instrument wraps each href in a signed click redirect, appends the open
// pixel, and adds the unsubscribe footer. Any signing failure leaves the
// affected link as-is; delivery beats instrumentation.
func (i *Instrumenter) Instrument(payload TokenPayload, html, unsubscribeToken string) string {
	if !i.Enabled() {
		return html
	}

	base := strings.TrimRight(i.cfg.BaseURL, "/")
	linkIndex := 0
	html = hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		clickPayload := payload
		clickPayload.Link = target
		clickPayload.LinkIndex = linkIndex
		linkIndex++

		token, err := MintToken(i.cfg, clickPayload)
		if err != nil {
			return match
		}
		return fmt.Sprintf(`href="%s/t/click/%s"`, base, url.PathEscape(token))
	})

	if token, err := MintToken(i.cfg, payload); err == nil {
		html += fmt.Sprintf(`<img src="%s/t/open/%s" width="1" height="1" alt="" />`, base, url.PathEscape(token))
	}
	if unsubscribeToken != "" {
		html += fmt.Sprintf(`<p><a href="%s/t/unsubscribe/%s">Unsubscribe</a></p>`, base, url.PathEscape(unsubscribeToken))
	}
	return html
}
