package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// FilingsConfig configures a FilingsSource.
type FilingsConfig struct {
	CIK       string
	Company   string
	UserAgent string
	// BaseURL serves /submissions/CIK##########.json.
	BaseURL string
	// ArchiveURL prefixes filing document links.
	ArchiveURL string
	// Lookback applies when Fetch is called without a since time.
	Lookback time.Duration
	// RequestsPerSecond paces calls; EDGAR allows 10.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// FilingsSource reads recent regulatory filings from SEC EDGAR.
type FilingsSource struct {
	cfg    FilingsConfig
	http   *httpFetcher
	logger *slog.Logger
	now    func() time.Time
}

// NewFilingsSource creates a filings source.
func NewFilingsSource(cfg FilingsConfig, logger *slog.Logger) *FilingsSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.sec.gov"
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = "https://www.sec.gov/Archives/edgar/data"
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 90 * 24 * time.Hour
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	return &FilingsSource{
		cfg:    cfg,
		http:   newHTTPFetcher(cfg.Timeout, cfg.RequestsPerSecond, cfg.UserAgent),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Source.
func (s *FilingsSource) Name() string { return "filings" }

type submissions struct {
	Filings struct {
		Recent struct {
			AccessionNumber       []string `json:"accessionNumber"`
			FilingDate            []string `json:"filingDate"`
			Form                  []string `json:"form"`
			PrimaryDocument       []string `json:"primaryDocument"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// Filing is one entry of the EDGAR recent-filings table.
type Filing struct {
	Form        string
	Accession   string
	FilingDate  time.Time
	Document    string
	Description string
	URL         string
}

// Fetch implements Source.
func (s *FilingsSource) Fetch(ctx context.Context, since time.Time) (Batch, error) {
	if s.cfg.CIK == "" {
		return Batch{}, fmt.Errorf("filings: no CIK configured")
	}
	cutoff := since
	if cutoff.IsZero() {
		cutoff = s.now().Add(-s.cfg.Lookback)
	}
	// Filing dates carry no time of day; compare on whole days.
	cutoff = time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)

	url := fmt.Sprintf("%s/submissions/CIK%s.json", strings.TrimRight(s.cfg.BaseURL, "/"), padCIK(s.cfg.CIK))
	body, err := s.http.get(ctx, url)
	if err != nil {
		return Batch{}, fmt.Errorf("fetching filings: %w", err)
	}

	filings, err := s.parse(body, cutoff)
	if err != nil {
		return Batch{}, err
	}
	s.logger.Info("filings fetched", "count", len(filings), "cutoff", cutoff.Format("2006-01-02"))

	entities := make([]models.Entity, 0, len(filings))
	for i := range filings {
		entities = append(entities, s.normalize(&filings[i]))
	}
	return Batch{Items: len(filings), Entities: entities}, nil
}

func (s *FilingsSource) parse(body []byte, cutoff time.Time) ([]Filing, error) {
	var sub submissions
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decoding filings: %w", err)
	}
	r := sub.Filings.Recent
	at := func(list []string, i int) string {
		if i < len(list) {
			return list[i]
		}
		return ""
	}

	var out []Filing
	for i := range r.Form {
		dateStr := at(r.FilingDate, i)
		if dateStr == "" {
			continue
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			s.logger.Warn("skipping filing with bad date", "date", dateStr)
			continue
		}
		if date.Before(cutoff) {
			continue
		}
		f := Filing{
			Form:        at(r.Form, i),
			Accession:   at(r.AccessionNumber, i),
			FilingDate:  date,
			Document:    at(r.PrimaryDocument, i),
			Description: at(r.PrimaryDocDescription, i),
		}
		f.URL = fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(s.cfg.ArchiveURL, "/"),
			strings.TrimLeft(s.cfg.CIK, "0"), strings.ReplaceAll(f.Accession, "-", ""), f.Document)
		out = append(out, f)
	}
	return out, nil
}

// FilingEventType maps a form type to the external event type used by scoring.
func FilingEventType(form string) string {
	switch form {
	case "8-K", "10-K", "10-Q":
		return "SEC Filing (" + form + ")"
	case "DEF 14A":
		return "Proxy Statement"
	case "4":
		return "Insider Trading Report"
	default:
		return "SEC Filing"
	}
}

func filingSignificance(form string) string {
	if form == "8-K" {
		return "High"
	}
	return "Medium"
}

func (s *FilingsSource) normalize(f *Filing) models.Entity {
	company := s.cfg.Company
	if company == "" {
		company = "CIK " + s.cfg.CIK
	}
	desc := f.Description
	if desc == "" {
		desc = fmt.Sprintf("%s filed %s with SEC", company, f.Form)
	}
	return NewEntity(models.EntityTypeExternalEvent, models.Fields{
		"title":            fmt.Sprintf("%s %s Filing", company, f.Form),
		"event_type":       FilingEventType(f.Form),
		"description":      desc,
		"source":           "SEC EDGAR",
		"url":              f.URL,
		"accession_number": f.Accession,
		"published_date":   f.FilingDate.Format("2006-01-02"),
		"significance":     filingSignificance(f.Form),
		"timestamp":        f.FilingDate.Format(time.RFC3339),
	})
}

// padCIK left-pads a CIK to the 10 digits EDGAR expects.
func padCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}
