// Package extract turns a fetched job posting page into a structured
// record.
package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobharvest/internal/jobs"
)

// Labels of the posting's detail spans. The value sits in the next span
// in document order.
const (
	labelPublicationDate = "Publication date:"
	labelWorkload        = "Workload:"
	labelContractType    = "Contract type:"
	labelSalary          = "Salary:"
	labelPlaceOfWork     = "Place of work:"
)

var workloadNumberRe = regexp.MustCompile(`\d+`)

// Parse extracts a Record from a posting page. The title uses a
// distinct rule from the labeled fields and is required: a record
// without a title fails rather than proceeding partially.
func Parse(pageURL string, body []byte, identity jobs.Identity) (jobs.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return jobs.Record{}, &jobs.ParseError{URL: pageURL, Field: "document"}
	}

	title := extractTitle(doc)
	if title == "" {
		return jobs.Record{}, &jobs.ParseError{URL: pageURL, Field: "title"}
	}

	rec := jobs.Record{
		Identity:     identity,
		Title:        title,
		Location:     jobs.StringPtr(labeledValue(doc, labelPlaceOfWork)),
		ContractType: jobs.StringPtr(labeledValue(doc, labelContractType)),
		PostedDate:   jobs.StringPtr(labeledValue(doc, labelPublicationDate)),
		Salary:       jobs.ParseSalary(labeledValue(doc, labelSalary)),
		SourceURL:    pageURL,
	}
	rec.WorkloadPercent = parseWorkload(labeledValue(doc, labelWorkload))
	return rec, nil
}

// extractTitle tries the <title> tag first (stripping the site's
// " - Job Offer" suffix), then <h1>, then a class-based lookup.
func extractTitle(doc *goquery.Document) string {
	if raw := strings.TrimSpace(doc.Find("title").First().Text()); raw != "" {
		if i := strings.Index(raw, " - Job Offer"); i >= 0 {
			raw = raw[:i]
		}
		if t := strings.TrimSpace(raw); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("div.job-title").First().Text())
}

// labeledValue finds the span whose text equals label and returns the
// text of the next span in document order, or "" when absent.
func labeledValue(doc *goquery.Document, label string) string {
	spans := doc.Find("span")
	value := ""
	spans.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != label {
			return true
		}
		if next := spans.Eq(i + 1); next.Length() > 0 {
			value = strings.TrimSpace(next.Text())
		}
		return false
	})
	return value
}

// parseWorkload reads "80 – 100%" style text and keeps the upper bound.
// nil means the workload is absent, distinct from a genuine 0.
func parseWorkload(text string) *int {
	if text == "" {
		return nil
	}
	matches := workloadNumberRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	highest := 0
	for _, m := range matches {
		if v, err := strconv.Atoi(m); err == nil && v > highest {
			highest = v
		}
	}
	if highest == 0 {
		return nil
	}
	return &highest
}
