package assets

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Large files on the remote host are served behind an interstitial HTML
// page carrying a confirmation token. These helpers extract that token and
// any extra form parameters with explicit fallbacks, in precedence order:
// cookie, hidden input, literal "confirm=" match. They deliberately stay
// regex-based rather than growing into an HTML parser.

var (
	inputTagPattern     = regexp.MustCompile(`(?i)<input[^>]+>`)
	inputValuePattern   = regexp.MustCompile(`(?i)value\s*=\s*["']([^"']+)["']`)
	confirmQueryPattern = regexp.MustCompile(`confirm=([A-Za-z0-9_-]+)`)
	formActionPattern   = regexp.MustCompile(`(?i)<form[^>]+action=["']([^"']+)["']`)
)

// confirmFromCookies returns the confirmation token published via a
// download_warning* cookie, or "".
func confirmFromCookies(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if strings.HasPrefix(c.Name, "download_warning") {
			return c.Value
		}
	}
	return ""
}

// confirmPage holds everything scraped from an interstitial page body.
type confirmPage struct {
	token       string
	extraParams url.Values
	actionURL   string
}

// parseConfirmPage scrapes token, hidden parameters and the form action
// from an interstitial page body.
func parseConfirmPage(body string) confirmPage {
	page := confirmPage{extraParams: url.Values{}}
	page.token = hiddenInputValue(body, "confirm")
	if page.token == "" {
		if m := confirmQueryPattern.FindStringSubmatch(body); m != nil {
			page.token = m[1]
		}
	}
	if uuid := hiddenInputValue(body, "uuid"); uuid != "" {
		page.extraParams.Set("uuid", uuid)
	}
	action, params := formAction(body)
	page.actionURL = action
	for k, vs := range params {
		for _, v := range vs {
			page.extraParams.Add(k, v)
		}
	}
	return page
}

// hiddenInputValue scans <input> tags for one named field and returns its
// value attribute.
func hiddenInputValue(body, field string) string {
	namePattern := regexp.MustCompile(`(?i)name\s*=\s*["']` + regexp.QuoteMeta(field) + `["']`)
	for _, tag := range inputTagPattern.FindAllString(body, -1) {
		if !namePattern.MatchString(tag) {
			continue
		}
		if m := inputValuePattern.FindStringSubmatch(tag); m != nil {
			return m[1]
		}
	}
	return ""
}

// formAction returns the first form action URL (without its query) plus any
// query parameters embedded in it.
func formAction(body string) (string, url.Values) {
	m := formActionPattern.FindStringSubmatch(body)
	if m == nil {
		return "", nil
	}
	raw := m[1]
	base, query, _ := strings.Cut(raw, "?")
	var params url.Values
	if query != "" {
		params, _ = url.ParseQuery(query)
	}
	return base, params
}

// resolveActionURL resolves a scraped form action against the page URL.
func resolveActionURL(pageURL *url.URL, action string) string {
	if action == "" {
		return ""
	}
	ref, err := url.Parse(action)
	if err != nil {
		return ""
	}
	if pageURL == nil {
		return ref.String()
	}
	return pageURL.ResolveReference(ref).String()
}
