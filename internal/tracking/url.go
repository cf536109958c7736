package tracking

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultURLTemplate is the CTT public tracking detail page.
const DefaultURLTemplate = "https://appserver.ctt.pt/CustomerArea/PublicArea_Detail?ObjectCodeInput={code}&SearchInput={code}&IsFromPublicArea=true"

// URLBuilder expands a carrier page template for a tracking code.
type URLBuilder struct {
	Template string
}

// Build replaces every {code} in the template with the query-escaped code.
func (b URLBuilder) Build(code Code) (string, error) {
	c := strings.TrimSpace(string(code))
	if c == "" {
		return "", errors.New("empty tracking code")
	}
	tmpl := b.Template
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	return strings.ReplaceAll(tmpl, "{code}", url.QueryEscape(c)), nil
}

// CarrierURL builds the default CTT tracking page URL for code.
func CarrierURL(code Code) (string, error) {
	return URLBuilder{}.Build(code)
}
