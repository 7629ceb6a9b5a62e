package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an absolute href together with its anchor text.
type Link struct {
	URL  string
	Text string
}

var contactRe = regexp.MustCompile(`(?i)contact|about|team`)

// Job boards and social networks are never a company's own website.
var excludedSiteHosts = []string{"google", "linkedin", "indeed", "glassdoor", "facebook", "twitter", "remoteok"}

// Links returns every http(s) link in body resolved against baseURL, fragment-free and
// deduplicated in document order.
func Links(body []byte, baseURL string) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: must have scheme and host", baseURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		u := strings.TrimSuffix(abs.String(), "/")
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		links = append(links, Link{URL: u, Text: CleanText(s.Text())})
	})
	return links, nil
}

// ContactLinks returns up to limit same-host links whose path or anchor text mentions
// contact, about, or team.
func ContactLinks(body []byte, pageURL string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	links, err := Links(body, pageURL)
	if err != nil {
		return nil
	}
	host := hostname(pageURL)
	var out []string
	for _, l := range links {
		if hostname(l.URL) != host {
			continue
		}
		if !contactRe.MatchString(pathOf(l.URL)) && !contactRe.MatchString(l.Text) {
			continue
		}
		out = append(out, l.URL)
		if len(out) == limit {
			break
		}
	}
	return out
}

// CompanyWebsite picks the first external link on a posting page that looks like the
// company's own site. It returns "" when nothing qualifies.
func CompanyWebsite(body []byte, pageURL string) string {
	links, err := Links(body, pageURL)
	if err != nil {
		return ""
	}
	pageHost := hostname(pageURL)
	for _, l := range links {
		host := hostname(l.URL)
		if host == "" || host == pageHost || IsExcludedSite(host) {
			continue
		}
		return l.URL
	}
	return ""
}

// IsExcludedSite reports whether host belongs to a job board or social network.
func IsExcludedSite(host string) bool {
	host = strings.ToLower(host)
	for _, marker := range excludedSiteHosts {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}
