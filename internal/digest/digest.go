// Package digest aggregates a trailing window of scored changes and external
// events into a short executive summary.
package digest

import (
	"log/slog"
	"sort"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/pkg/textutil"
)

// Status is the overall account health.
type Status string

const (
	StatusGreen  Status = "Green"
	StatusYellow Status = "Yellow"
	StatusRed    Status = "Red"
)

// Momentum is the direction the account is moving in.
type Momentum string

const (
	MomentumImproving     Momentum = "Improving"
	MomentumFlat          Momentum = "Flat"
	MomentumDeteriorating Momentum = "Deteriorating"
)

// Snapshot is the headline of a digest.
type Snapshot struct {
	Status   Status   `json:"status"`
	Momentum Momentum `json:"momentum"`
	Summary  string   `json:"summary"`
}

// Risk is one key risk or watch item.
type Risk struct {
	ChangeID     string `json:"change_id"`
	Description  string `json:"description"`
	WhyItMatters string `json:"why_it_matters"`
	Outcome      string `json:"outcome"`
}

// Opportunity is a positive signal worth acting on.
type Opportunity struct {
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
}

// Action is a follow-up needing executive attention.
type Action struct {
	ChangeID string `json:"change_id"`
	Action   string `json:"action"`
	Due      string `json:"due"`
	Owner    string `json:"owner"`
}

// Digest is the rendered weekly summary and the sections it was built from.
type Digest struct {
	Account         string        `json:"account"`
	GeneratedAt     time.Time     `json:"generated_at"`
	Since           time.Time     `json:"since"`
	Snapshot        Snapshot      `json:"snapshot"`
	WhatChanged     []string      `json:"what_changed"`
	Risks           []Risk        `json:"risks"`
	Opportunities   []Opportunity `json:"opportunities"`
	Actions         []Action      `json:"actions"`
	ExternalSignals string        `json:"external_signals"`
	ChangesAnalyzed int           `json:"changes_analyzed"`
	EventsAnalyzed  int           `json:"events_analyzed"`
	Text            string        `json:"text"`
	WordCount       int           `json:"word_count"`
}

// Config bounds the digest.
type Config struct {
	Account          string
	Window           time.Duration
	MaxWords         int
	MaxChanges       int
	MaxRisks         int
	MaxOpportunities int
	MaxActions       int
}

// DefaultConfig returns a seven-day, 250-word digest configuration.
func DefaultConfig() Config {
	return Config{
		Window:           7 * 24 * time.Hour,
		MaxWords:         250,
		MaxChanges:       5,
		MaxRisks:         3,
		MaxOpportunities: 3,
		MaxActions:       3,
	}
}

// Generator builds digests. It never scores changes itself.
type Generator struct {
	cfg    Config
	logger *slog.Logger
}

// NewGenerator creates a digest generator. Zero limits fall back to defaults.
func NewGenerator(cfg Config, logger *slog.Logger) *Generator {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = def.MaxWords
	}
	if cfg.MaxChanges <= 0 {
		cfg.MaxChanges = def.MaxChanges
	}
	if cfg.MaxRisks <= 0 {
		cfg.MaxRisks = def.MaxRisks
	}
	if cfg.MaxOpportunities <= 0 {
		cfg.MaxOpportunities = def.MaxOpportunities
	}
	if cfg.MaxActions <= 0 {
		cfg.MaxActions = def.MaxActions
	}
	if cfg.Account == "" {
		cfg.Account = "Account"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{cfg: cfg, logger: logger}
}

// Window returns the trailing period a digest covers.
func (g *Generator) Window() time.Duration {
	return g.cfg.Window
}

// Build assembles the digest for the window ending at now. Changes outside
// the window are ignored; events are expected to be external_event entities
// already limited to the window, most recent first.
func (g *Generator) Build(now time.Time, changes []models.ChangeRecord, events []models.Entity) Digest {
	since := now.Add(-g.cfg.Window)

	inWindow := make([]models.ChangeRecord, 0, len(changes))
	for i := range changes {
		if !changes[i].ChangeTimestamp.Before(since) {
			inWindow = append(inWindow, changes[i])
		}
	}
	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].SignificanceScore > inWindow[j].SignificanceScore
	})

	var eventData []models.Fields
	for i := range events {
		if events[i].Type == models.EntityTypeExternalEvent {
			eventData = append(eventData, events[i].Data)
		}
	}

	d := Digest{
		Account:         g.cfg.Account,
		GeneratedAt:     now,
		Since:           since,
		Snapshot:        snapshot(inWindow),
		WhatChanged:     whatChanged(inWindow, g.cfg.MaxChanges),
		Risks:           keyRisks(inWindow, g.cfg.MaxRisks),
		Opportunities:   opportunities(g.cfg.Account, eventData, inWindow, g.cfg.MaxOpportunities),
		Actions:         actions(inWindow, g.cfg.MaxActions),
		ExternalSignals: externalSignals(eventData),
		ChangesAnalyzed: len(inWindow),
		EventsAnalyzed:  len(eventData),
	}
	d.Text = Render(&d)
	d.WordCount = textutil.WordCount(d.Text)
	if d.WordCount > g.cfg.MaxWords {
		g.logger.Warn("digest exceeds word budget", "words", d.WordCount, "max", g.cfg.MaxWords)
	}
	return d
}
