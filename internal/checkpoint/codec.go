package checkpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
)

// Header is the fixed column layout of every lead artifact.
var Header = []string{"country_or_term", "title", "company", "location", "description", "email", "source", "url"}

const emailSeparator = ", "

// Encode writes the header and one row per lead in order. Descriptions are truncated to
// limit characters; truncation is idempotent so re-encoding decoded rows is stable.
func Encode(w io.Writer, leads []crawler.Lead, limit int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, l := range leads {
		p := l.Posting
		row := []string{
			p.SearchLabel,
			p.Title,
			p.Company,
			p.Location,
			extract.Truncate(p.Description, limit),
			strings.Join(l.Emails, emailSeparator),
			p.SourceID,
			rowURL(p),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", p.ExternalRef, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Decode reads rows written by Encode. Rows without an email are skipped.
func Decode(r io.Reader) ([]crawler.Lead, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Header {
		if strings.TrimSpace(head[i]) != col {
			return nil, fmt.Errorf("unexpected column %d: %q", i, head[i])
		}
	}

	var leads []crawler.Lead
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return leads, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		emails := splitEmails(row[5])
		if len(emails) == 0 {
			continue
		}
		p := crawler.Posting{
			SearchLabel: row[0],
			Title:       row[1],
			Company:     row[2],
			Location:    row[3],
			Description: row[4],
			SourceID:    row[6],
			ExternalRef: row[7],
		}
		if isWebURL(row[7]) {
			p.DetailURL = row[7]
			if ref, err := crawler.NormalizeURL(row[7]); err == nil {
				p.ExternalRef = ref
			}
		}
		leads = append(leads, crawler.Lead{Posting: p, Emails: emails, RemoteEligible: true})
	}
}

// rowURL is the link written to the url column. Refs that are not links (text
// fingerprints, opaque ids) are only written when the posting has no URL at all.
func rowURL(p crawler.Posting) string {
	if p.DetailURL != "" {
		return p.DetailURL
	}
	return p.ExternalRef
}

func isWebURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func splitEmails(field string) []string {
	var out []string
	for _, e := range strings.Split(field, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
