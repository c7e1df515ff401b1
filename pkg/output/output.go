// Package output serializes scraped jobs to JSON or CSV files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ljobx/ljobx/pkg/scrape"
)

// Format selects the output serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or csv)", s)
	}
}

// csvHeader is the flattened column set for CSV output.
var csvHeader = []string{
	"JOB_ID", "TITLE", "COMPANY", "LOCATION", "POSTED_DATE", "APPLICANTS",
	"SALARY_RANGE", "DESCRIPTION", "APPLY_URL", "EASY_APPLY",
	"RECRUITER_NAME", "RECRUITER_TITLE", "RECRUITER_PROFILE", "ERROR",
}

// Write serializes jobs to w in the given format.
func Write(w io.Writer, format Format, jobs []scrape.Job) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, jobs)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(jobs)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeCSV(w io.Writer, jobs []scrape.Job) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, job := range jobs {
		var applyURL, easyApply string
		if job.Apply != nil {
			applyURL = job.Apply.URL
			easyApply = strconv.FormatBool(job.Apply.IsEasyApply)
		}
		var recName, recTitle, recProfile string
		if job.Recruiter != nil {
			recName = job.Recruiter.Name
			recTitle = job.Recruiter.Title
			recProfile = job.Recruiter.ProfileURL
		}
		record := []string{
			job.ID, job.Title, job.Company, job.Location, job.PostedDate,
			job.Applicants, job.SalaryRange, flatten(job.Description),
			applyURL, easyApply, recName, recTitle, recProfile, job.Err,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// flatten folds multi-line text onto one line for spreadsheet friendliness.
func flatten(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", "; "))
}

// Save writes jobs to a timestamped file in dir, named after the search
// keywords, and refreshes a "<base>_latest" symlink pointing at the newest
// output. It returns the path of the written file.
func Save(dir, keywords string, format Format, jobs []scrape.Job) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	base := slugify(keywords)
	name := fmt.Sprintf("%s_%s.%s", base, time.Now().Format("20060102_150405"), format)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Write(f, format, jobs); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if err := refreshLatest(dir, base, name, format); err != nil {
		return "", err
	}
	return path, nil
}

// refreshLatest points <base>_latest.<ext> at the newest output, copying when
// the filesystem does not support symlinks.
func refreshLatest(dir, base, name string, format Format) error {
	latest := filepath.Join(dir, fmt.Sprintf("%s_latest.%s", base, format))
	if err := os.Remove(latest); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(name, latest); err != nil {
		data, rerr := os.ReadFile(filepath.Join(dir, name))
		if rerr != nil {
			return rerr
		}
		return os.WriteFile(latest, data, 0o644)
	}
	return nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
