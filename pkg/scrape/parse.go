package scrape

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Job is one scraped job posting. Summary fields come from the listing page;
// the rest are filled from the detail page. Err is set when the detail fetch
// failed after retries, leaving only the summary.
type Job struct {
	ID          string     `json:"job_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location,omitempty"`
	PostedDate  string     `json:"posted_date,omitempty"`
	Applicants  string     `json:"applicants,omitempty"`
	Description string     `json:"description,omitempty"`
	SalaryRange string     `json:"salary_range,omitempty"`
	Apply       *Apply     `json:"apply,omitempty"`
	Recruiter   *Recruiter `json:"recruiter,omitempty"`
	Err         string     `json:"error,omitempty"`
}

// Apply is how a candidate applies to the posting.
type Apply struct {
	URL string `json:"url"`

	// IsEasyApply is true when the posting has no external application URL.
	IsEasyApply bool `json:"is_easy_apply"`
}

// Recruiter is the contact advertised on the posting, if any.
type Recruiter struct {
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// parseJobCards extracts job summaries from a listing page. Cards missing an
// entity URN, title or company are skipped.
func parseJobCards(body []byte) ([]Job, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var jobs []Job
	doc.Find("div.base-search-card").Each(func(_ int, card *goquery.Selection) {
		urn, _ := card.Attr("data-entity-urn")
		title := strings.TrimSpace(card.Find("h3.base-search-card__title").First().Text())
		company := strings.TrimSpace(card.Find("h4.base-search-card__subtitle").First().Text())
		if urn == "" || title == "" || company == "" {
			return
		}
		// URN format: urn:li:jobPosting:<id>
		id := urn[strings.LastIndex(urn, ":")+1:]
		jobs = append(jobs, Job{ID: id, Title: title, Company: company})
	})
	return jobs, nil
}

// parseJobDetails fills a job's detail fields from its posting page.
func parseJobDetails(job *Job, body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return err
	}

	topCard := doc.Find("section.top-card-layout").First()
	job.Location = strings.TrimSpace(topCard.Find("span.topcard__flavor--bullet").First().Text())
	job.PostedDate = strings.TrimSpace(topCard.Find("span.posted-time-ago__text").First().Text())
	job.Applicants = strings.TrimSpace(topCard.Find("figcaption.num-applicants__caption").First().Text())

	if desc := doc.Find("div.show-more-less-html__markup").First(); desc.Length() > 0 {
		job.Description = blockText(desc)
	}

	job.Apply = parseApply(doc, topCard)
	job.SalaryRange = strings.TrimSpace(doc.Find("div.salary.compensation__salary").First().Text())
	job.Recruiter = parseRecruiter(doc)
	return nil
}

// parseApply resolves the application target. External applications carry a
// redirect URL in a code element; postings without one are in-site applies
// linked from the top card.
func parseApply(doc *goquery.Document, topCard *goquery.Selection) *Apply {
	if el := doc.Find("code#applyUrl").First(); el.Length() > 0 {
		raw := strings.Trim(strings.TrimSpace(el.Text()), `"`)
		if raw != "" {
			return &Apply{URL: resolveApplyURL(raw), IsEasyApply: false}
		}
	}
	if href, ok := topCard.Find("a.topcard__link").First().Attr("href"); ok && href != "" {
		return &Apply{URL: href, IsEasyApply: true}
	}
	return nil
}

// resolveApplyURL unwraps the tracking redirect around an external apply URL,
// falling back to the raw value when it does not parse.
func resolveApplyURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := parsed.Query().Get("url"); target != "" {
		return target
	}
	return raw
}

func parseRecruiter(doc *goquery.Document) *Recruiter {
	section := doc.Find("div.message-the-recruiter").First()
	if section.Length() == 0 {
		return nil
	}
	rec := &Recruiter{
		Name:  strings.TrimSpace(section.Find("h3.base-main-card__title").First().Text()),
		Title: strings.TrimSpace(section.Find("h4.base-main-card__subtitle").First().Text()),
	}
	if href, ok := section.Find("a.base-card__full-link").First().Attr("href"); ok {
		rec.ProfileURL = href
	}
	return rec
}

// blockText renders a selection's text with newlines between block elements,
// so list items and paragraphs in descriptions stay on separate lines.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		writeNodeText(&b, node)
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "br", "p", "div", "li", "ul", "ol", "h1", "h2", "h3", "h4":
			b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
}
