package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

func TestTruncateIsRuneSafeAndIdempotent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 400)
	once := Truncate(long, DescriptionLimit)
	assert.Equal(t, DescriptionLimit, len([]rune(once)))
	assert.Equal(t, once, Truncate(once, DescriptionLimit))
	assert.Equal(t, "short", Truncate("short", DescriptionLimit))
	assert.Empty(t, Truncate("anything", 0))
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", CleanText("  a\n\tb   c "))
	assert.Empty(t, CleanText(""))
}

func TestHTMLTextDropsScripts(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head><style>.x{}</style><script>var a = "x@y.com";</script></head>
<body><p>Hello</p>
<p>World</p></body></html>`)
	assert.Equal(t, "Hello World", HTMLText(body))
	assert.Equal(t, "plain text", HTMLFragmentText("plain   text"))
	assert.Equal(t, "bold text", HTMLFragmentText("<b>bold</b> text"))
}

func TestEmails(t *testing.T) {
	t.Parallel()

	text := "Write to Jobs@Acme.io or jobs@acme.io, cc hr.team+go@acme.co.uk. Logo: logo@2x.png"
	assert.Equal(t, []string{"Jobs@Acme.io", "hr.team+go@acme.co.uk"}, Emails(text))
	assert.Empty(t, Emails("no addresses here"))
	assert.Empty(t, Emails(""))
}

func TestMergeEmails(t *testing.T) {
	t.Parallel()

	got := MergeEmails([]string{"a@x.io"}, nil, []string{"A@X.io", "b@x.io"})
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, got)
}

func TestMailtoAndPageEmails(t *testing.T) {
	t.Parallel()

	body := []byte(`<a href="mailto:careers@acme.io?subject=Hi">Mail</a>
<p>Or talk to press@acme.io</p>
<a href="mailto:careers@acme.io">again</a>`)
	assert.Equal(t, []string{"careers@acme.io"}, MailtoEmails(body))
	assert.Equal(t, []string{"careers@acme.io", "press@acme.io"}, PageEmails(body))
}

func TestLinksResolvesAndDeduplicates(t *testing.T) {
	t.Parallel()

	body := []byte(`<a href="/about/">About</a><a href="/about#team">About again</a>
<a href="https://other.io/x">Other</a><a href="javascript:void(0)">js</a><a href="mailto:a@b.io">m</a>`)
	links, err := Links(body, "https://acme.io/jobs/1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, Link{URL: "https://acme.io/about", Text: "About"}, links[0])
	assert.Equal(t, "https://other.io/x", links[1].URL)

	_, err = Links(body, "not a url")
	require.Error(t, err)
}

func TestContactLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`
<a href="/careers">Careers</a>
<a href="/contact-us">Get in touch</a>
<a href="/company">About us</a>
<a href="https://www.acme.io/team">People</a>
<a href="/press">Team news</a>
<a href="https://elsewhere.io/contact">Partner</a>`)
	links := ContactLinks(body, "https://acme.io", 3)
	assert.Equal(t, []string{
		"https://acme.io/contact-us",
		"https://acme.io/company",
		"https://www.acme.io/team",
	}, links)
	assert.Empty(t, ContactLinks(body, "https://acme.io", 0))
}

func TestCompanyWebsiteSkipsBoardsAndSocial(t *testing.T) {
	t.Parallel()

	body := []byte(`
<a href="/jobs/2">Another job</a>
<a href="https://www.linkedin.com/company/acme">LinkedIn</a>
<a href="https://twitter.com/acme">Twitter</a>
<a href="https://acme.io">Acme</a>`)
	assert.Equal(t, "https://acme.io", CompanyWebsite(body, "https://jobs.example.com/view/1"))
	assert.Empty(t, CompanyWebsite([]byte(`<p>none</p>`), "https://jobs.example.com/view/1"))
	assert.True(t, IsExcludedSite("uk.indeed.com"))
	assert.False(t, IsExcludedSite("acme.io"))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	desc := strings.Repeat("lorem ipsum ", 40) + " contact: hiring@acme.io"
	p := Normalize(crawler.Posting{
		SourceID:    "remoteok",
		Title:       "  Go   Engineer ",
		Company:     "Acme",
		Description: desc,
		DetailURL:   "https://remoteok.com/remote-jobs/1",
	}, DescriptionLimit)

	assert.Equal(t, "Go Engineer", p.Title)
	assert.LessOrEqual(t, len([]rune(p.Description)), DescriptionLimit)
	assert.Equal(t, []string{"hiring@acme.io"}, p.DescriptionEmails, "emails past the cut are kept")
	assert.Equal(t, "https://remoteok.com/remote-jobs/1", p.ExternalRef)

	again := Normalize(p, DescriptionLimit)
	assert.Equal(t, p.Description, again.Description)
	assert.Equal(t, p.DescriptionEmails, again.DescriptionEmails)
}

func TestNormalizeSynthesizesRef(t *testing.T) {
	t.Parallel()

	p := Normalize(crawler.Posting{Title: "Analyst", Company: "Acme"}, DescriptionLimit)
	assert.True(t, strings.HasPrefix(p.ExternalRef, "sha256:"))
	assert.Equal(t, p.ExternalRef, Normalize(crawler.Posting{Title: "analyst", Company: " ACME"}, DescriptionLimit).ExternalRef)
}

func TestNormalizeNeverPanics(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		Normalize(crawler.Posting{}, DescriptionLimit)
		HTMLText(nil)
		PageEmails([]byte("<<<>>>"))
		ContactLinks([]byte("<a href='%zz'>contact</a>"), "https://acme.io", 3)
	})
}
