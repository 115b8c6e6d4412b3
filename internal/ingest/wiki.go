package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/mcpclient"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Wiki server tools.
const (
	WikiFetchTool  = "notion-fetch"
	WikiSearchTool = "notion-search"
)

// WikiConfig configures a WikiSource.
type WikiConfig struct {
	// PageIDs are fetched on every run (hub and stakeholder pages).
	PageIDs   []string
	SearchTag string
	// Programs are the program names looked for verbatim in page content.
	Programs []string
	// CompanyDomain marks stakeholders whose email is on the account's domain.
	CompanyDomain string
	Company       string
}

// WikiPage is a fetched wiki page.
type WikiPage struct {
	ID      string
	Content string
}

// WikiSource reads known wiki pages plus tag search hits.
type WikiSource struct {
	tools  mcpclient.ToolCaller
	cfg    WikiConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewWikiSource creates a wiki source.
func NewWikiSource(tools mcpclient.ToolCaller, cfg WikiConfig, logger *slog.Logger) *WikiSource {
	if len(cfg.Programs) == 0 {
		for _, p := range DefaultProgramKeywords() {
			cfg.Programs = append(cfg.Programs, p.Name)
		}
	}
	return &WikiSource{
		tools:  tools,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Source.
func (s *WikiSource) Name() string { return "wiki" }

// Fetch implements Source. A page that cannot be fetched is skipped with a
// warning; the run fails only when nothing could be read at all.
func (s *WikiSource) Fetch(ctx context.Context, _ time.Time) (Batch, error) {
	var (
		pages   []WikiPage
		lastErr error
	)
	seen := make(map[string]bool)

	for _, id := range s.cfg.PageIDs {
		page, err := s.fetchPage(ctx, id)
		if err != nil {
			s.logger.Warn("fetching wiki page", "page_id", id, "error", err)
			lastErr = err
			continue
		}
		seen[id] = true
		pages = append(pages, page)
	}

	if s.cfg.SearchTag != "" {
		ids, err := s.search(ctx, s.cfg.SearchTag)
		if err != nil {
			if len(pages) == 0 {
				return Batch{}, fmt.Errorf("searching wiki: %w", err)
			}
			s.logger.Warn("searching wiki", "tag", s.cfg.SearchTag, "error", err)
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			page, err := s.fetchPage(ctx, id)
			if err != nil {
				s.logger.Warn("fetching wiki search hit", "page_id", id, "error", err)
				lastErr = err
				continue
			}
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 && lastErr != nil {
		return Batch{}, fmt.Errorf("no wiki page could be read: %w", lastErr)
	}

	var entities []models.Entity
	now := s.now()
	for i := range pages {
		entities = append(entities, s.normalize(&pages[i], now)...)
	}
	s.logger.Info("wiki pages read", "pages", len(pages), "entities", len(entities))
	return Batch{Items: len(pages), Entities: entities}, nil
}

func (s *WikiSource) fetchPage(ctx context.Context, id string) (WikiPage, error) {
	out, err := s.tools.CallTool(ctx, WikiFetchTool, map[string]any{"id": id})
	if err != nil {
		return WikiPage{}, err
	}
	return WikiPage{ID: id, Content: out}, nil
}

var wikiURLRe = regexp.MustCompile(`https://www\.notion\.so/(?:[\w-]*-)?([a-f0-9]{32})`)

func (s *WikiSource) search(ctx context.Context, query string) ([]string, error) {
	out, err := s.tools.CallTool(ctx, WikiSearchTool, map[string]any{
		"query":      query,
		"query_type": "internal",
	})
	if err != nil {
		return nil, err
	}
	return ParseWikiSearch(out), nil
}

// ParseWikiSearch extracts page ids from the page URLs in search output.
func ParseWikiSearch(text string) []string {
	var ids []string
	for _, sm := range wikiURLRe.FindAllStringSubmatch(text, -1) {
		ids = append(ids, sm[1])
	}
	return ids
}

func (s *WikiSource) normalize(p *WikiPage, now time.Time) []models.Entity {
	var out []models.Entity
	out = append(out, s.stakeholders(p, now)...)
	out = append(out, wikiPrograms(p, s.cfg.Programs, now)...)
	out = append(out, wikiRisks(p)...)
	return out
}

var stakeholderLineRe = regexp.MustCompile(`([A-Za-z][A-Za-z .']*?)\s+-\s+([A-Za-z][A-Za-z &/]*?)\s+-\s+([\w.+-]+@[\w.-]+\.\w+)`)

// stakeholders extracts "Name - Role - email" lines.
func (s *WikiSource) stakeholders(p *WikiPage, now time.Time) []models.Entity {
	var out []models.Entity
	for _, sm := range stakeholderLineRe.FindAllStringSubmatch(p.Content, -1) {
		name, role, email := strings.TrimSpace(sm[1]), strings.TrimSpace(sm[2]), strings.TrimSpace(sm[3])
		company := "Unknown"
		if s.cfg.CompanyDomain != "" && strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(s.cfg.CompanyDomain)) {
			company = s.cfg.Company
		}
		out = append(out, NewEntity(models.EntityTypeStakeholder, models.Fields{
			"name":      name,
			"role":      role,
			"email":     email,
			"company":   company,
			"last_seen": now.Format(time.RFC3339),
			"source":    "notion://" + p.ID,
		}))
	}
	return out
}

var wikiStatuses = []string{"Blocked", "At Risk", "Completed", "In Progress"}

// wikiPrograms reports each named program with the first status phrase found
// within 100 bytes of its first mention.
func wikiPrograms(p *WikiPage, programs []string, now time.Time) []models.Entity {
	var out []models.Entity
	for _, name := range programs {
		idx := strings.Index(p.Content, name)
		if idx < 0 {
			continue
		}
		lo, hi := max(0, idx-100), min(len(p.Content), idx+100)
		window := p.Content[lo:hi]

		status := "In Progress"
		for _, st := range wikiStatuses {
			if strings.Contains(window, st) {
				status = st
				break
			}
		}
		out = append(out, NewEntity(models.EntityTypeProgram, models.Fields{
			"name":         name,
			"status":       status,
			"last_updated": now.Format(time.RFC3339),
			"source":       "notion://" + p.ID,
		}))
	}
	return out
}

var wikiRiskKeywords = []string{"blocker", "risk", "issue", "delay"}

func wikiRisks(p *WikiPage) []models.Entity {
	content := strings.ToLower(p.Content)
	var out []models.Entity
	for _, kw := range wikiRiskKeywords {
		if !strings.Contains(content, kw) {
			continue
		}
		desc := "Risk mentioned in wiki: " + kw
		out = append(out, NewEntity(models.EntityTypeRisk, models.Fields{
			"category":    "Technical",
			"severity":    "Medium",
			"description": desc,
			"status":      "Open",
			"source":      "notion://" + p.ID,
		}))
	}
	return out
}
