package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeTools answers tool calls from a table and records every call.
type fakeTools struct {
	mu      sync.Mutex
	answers map[string]func(args map[string]any) (string, error)
	calls   []string
	args    []map[string]any
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	f.mu.Unlock()
	if fn, ok := f.answers[name]; ok {
		return fn(args)
	}
	return "", errors.New("unknown tool " + name)
}

func byType(entities []models.Entity, et models.EntityType) []models.Entity {
	var out []models.Entity
	for _, e := range entities {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

// --- keys ---

func TestEntityID(t *testing.T) {
	assert.Equal(t, "jane@acme.com", EntityID(models.EntityTypeStakeholder, models.Fields{"email": "Jane@ACME.com", "name": "Jane"}))
	assert.Equal(t, "jane doe", EntityID(models.EntityTypeStakeholder, models.Fields{"name": "Jane Doe"}))
	assert.Equal(t, "agent_factory", EntityID(models.EntityTypeProgram, models.Fields{"name": "Agent  Factory"}))
	assert.Equal(t, "go_live", EntityID(models.EntityTypeTimeline, models.Fields{"milestone": "Go Live"}))
	assert.Equal(t, "https://x/1", EntityID(models.EntityTypeExternalEvent, models.Fields{"url": "https://x/1", "title": "T"}))
	assert.Equal(t, "T", EntityID(models.EntityTypeExternalEvent, models.Fields{"title": "T"}))
	assert.Equal(t, "unknown", EntityID(models.EntityTypeProgram, nil))

	long := strings.Repeat("é", 150)
	assert.Equal(t, strings.Repeat("é", 100), EntityID(models.EntityTypeRisk, models.Fields{"description": long}))

	// Full-width letters normalize to the same key.
	assert.Equal(t, EntityID(models.EntityTypeProgram, models.Fields{"name": "CDD"}),
		EntityID(models.EntityTypeProgram, models.Fields{"name": "ＣＤＤ"}))
}

func TestEntityID_OtherTypesAreStable(t *testing.T) {
	a := EntityID("contract", models.Fields{"b": 2, "a": "x"})
	b := EntityID("contract", models.Fields{"a": "x", "b": 2})
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "contract_"))
	assert.Len(t, a, len("contract_")+12)
	assert.NotEqual(t, a, EntityID("contract", models.Fields{"a": "y", "b": 2}))
}

// --- chat ---

const chatResults = `Found 3 results

### Result 1 of 3
Channel: #acme-program (C0123ABC)
From: Jane Doe (U0456DEF)
Time: 2026-01-15 14:30:00 UTC
Message_ts: 1736951400.000100
Text: Agent Factory deployment is blocked by a critical security review, target go live March 15
🧵 Thread: 3 replies

### Result 2 of 3
Channel: #acme-general (C0999XYZ)
From: Bob Roe (U0777GHI)
Time: not a time
Message_ts: 1736951500.000200
Text: Deposit pricing pilot completed ahead of Q2 2026

### Result 3 of 3
From: Nobody (U0000000)
Text: no channel line, dropped
`

func TestParseChatResults(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	msgs := ParseChatResults(chatResults, now)
	require.Len(t, msgs, 2)

	m := msgs[0]
	assert.Equal(t, "acme-program", m.ChannelName)
	assert.Equal(t, "C0123ABC", m.ChannelID)
	assert.Equal(t, "Jane Doe", m.UserName)
	assert.Equal(t, "U0456DEF", m.UserID)
	assert.Equal(t, time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC), m.Timestamp)
	assert.Equal(t, "1736951400.000100", m.MessageTS)
	assert.True(t, m.HasThread)
	assert.Equal(t, "slack://C0123ABC/1736951400.000100", m.Ref())

	assert.Equal(t, now, msgs[1].Timestamp)
	assert.False(t, msgs[1].HasThread)

	assert.Empty(t, ParseChatResults("No results", now))
}

func TestChatSource_Fetch(t *testing.T) {
	tools := &fakeTools{answers: map[string]func(map[string]any) (string, error){
		ChatSearchTool: func(map[string]any) (string, error) { return chatResults, nil },
		ChatThreadTool: func(map[string]any) (string, error) { return "reply: unblocked tomorrow", nil },
	}}
	src := NewChatSource(tools, ChatConfig{Query: "ACME"}, nil, testLogger())

	since := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	batch, err := src.Fetch(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Items)

	require.Equal(t, ChatSearchTool, tools.calls[0])
	assert.Equal(t, "ACME after:2026-01-10", tools.args[0]["query"])
	assert.Equal(t, 20, tools.args[0]["limit"])
	assert.Contains(t, tools.calls, ChatThreadTool)

	stakeholders := byType(batch.Entities, models.EntityTypeStakeholder)
	require.Len(t, stakeholders, 2)
	assert.Equal(t, "U0456DEF", stakeholders[0].ID)
	assert.Equal(t, "Jane Doe", stakeholders[0].Data["name"])

	programs := byType(batch.Entities, models.EntityTypeProgram)
	require.Len(t, programs, 2)
	assert.Equal(t, "agent_factory", programs[0].ID)
	assert.Equal(t, "Blocked", programs[0].Data["status"])
	assert.Equal(t, "slack://C0123ABC/1736951400.000100", programs[0].Data["source"])
	assert.Equal(t, "deposit_pricing", programs[1].ID)
	assert.Equal(t, "Completed", programs[1].Data["status"])

	risks := byType(batch.Entities, models.EntityTypeRisk)
	require.Len(t, risks, 1)
	assert.Equal(t, "Critical", risks[0].Data["severity"])

	timelines := byType(batch.Entities, models.EntityTypeTimeline)
	require.Len(t, timelines, 2)
	assert.Equal(t, "go live", timelines[0].Data["milestone"])
	assert.Equal(t, "March 15", timelines[0].Data["target_date"])
	assert.Equal(t, "Q2 2026", timelines[1].Data["target_date"])
	for _, e := range batch.Entities {
		assert.NoError(t, e.Validate())
	}
}

func TestChatSource_SearchFailure(t *testing.T) {
	tools := &fakeTools{answers: map[string]func(map[string]any) (string, error){
		ChatSearchTool: func(map[string]any) (string, error) { return "", errors.New("unavailable") },
	}}
	_, err := NewChatSource(tools, ChatConfig{Query: "ACME"}, nil, testLogger()).Fetch(context.Background(), time.Time{})
	assert.ErrorContains(t, err, "unavailable")
	assert.Equal(t, "ACME", tools.args[0]["query"])
}

type stubExtractor struct{ out []models.Entity }

func (s stubExtractor) Extract(context.Context, string) ([]models.Entity, error) {
	out := make([]models.Entity, len(s.out))
	for i, e := range s.out {
		out[i] = models.Entity{Type: e.Type, ID: e.ID, Data: e.Data.Clone()}
	}
	return out, nil
}

func TestChatSource_Extractor(t *testing.T) {
	tools := &fakeTools{answers: map[string]func(map[string]any) (string, error){
		ChatSearchTool: func(map[string]any) (string, error) {
			return "### Result 1 of 1\nChannel: #x (C1)\nText: hello there\n", nil
		},
	}}
	ex := stubExtractor{out: []models.Entity{NewEntity(models.EntityTypeGovernance, models.Fields{"name": "Steering committee"})}}
	batch, err := NewChatSource(tools, ChatConfig{Query: "ACME"}, ex, testLogger()).Fetch(context.Background(), time.Time{})
	require.NoError(t, err)

	gov := byType(batch.Entities, models.EntityTypeGovernance)
	require.Len(t, gov, 1)
	assert.Equal(t, "slack://C1/", gov[0].Data["source"])
}

func TestProgramStatusAndSeverity(t *testing.T) {
	assert.Equal(t, "Blocked", programStatus("this is blocking us"))
	assert.Equal(t, "At Risk", programStatus("slightly delayed"))
	assert.Equal(t, "Completed", programStatus("all done"))
	assert.Equal(t, "In Progress", programStatus("kickoff"))

	assert.Equal(t, "Critical", riskSeverity("urgent issue"))
	assert.Equal(t, "High", riskSeverity("major problem"))
	assert.Equal(t, "Medium", riskSeverity("small issue"))
}

// --- wiki ---

const hubPage = `ACME Program Hub

Stakeholders:
Jane Smith - CEO - jane.smith@acme.com
Raj Patel - AI Program Lead - raj@partner.io

Agent Factory: Blocked pending vendor contract.
Open issue: data access delay.`

func TestWikiSource_Fetch(t *testing.T) {
	tools := &fakeTools{answers: map[string]func(map[string]any) (string, error){
		WikiFetchTool: func(args map[string]any) (string, error) {
			switch args["id"] {
			case "hub":
				return hubPage, nil
			case "0123456789abcdef0123456789abcdef":
				return "CDD MVP is Completed.", nil
			}
			return "", errors.New("not found")
		},
		WikiSearchTool: func(map[string]any) (string, error) {
			return "1. Roadmap https://www.notion.so/Roadmap-0123456789abcdef0123456789abcdef\n" +
				"2. Hub again https://www.notion.so/0123456789abcdef0123456789abcdef", nil
		},
	}}
	src := NewWikiSource(tools, WikiConfig{
		PageIDs:       []string{"hub", "missing"},
		SearchTag:     "ACME",
		CompanyDomain: "acme.com",
		Company:       "ACME",
	}, testLogger())

	batch, err := src.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Items)

	stakeholders := byType(batch.Entities, models.EntityTypeStakeholder)
	require.Len(t, stakeholders, 2)
	assert.Equal(t, "jane.smith@acme.com", stakeholders[0].ID)
	assert.Equal(t, "Jane Smith", stakeholders[0].Data["name"])
	assert.Equal(t, "CEO", stakeholders[0].Data["role"])
	assert.Equal(t, "ACME", stakeholders[0].Data["company"])
	assert.Equal(t, "AI Program Lead", stakeholders[1].Data["role"])
	assert.Equal(t, "Unknown", stakeholders[1].Data["company"])

	programs := byType(batch.Entities, models.EntityTypeProgram)
	require.Len(t, programs, 2)
	assert.Equal(t, "Blocked", programs[0].Data["status"])
	assert.Equal(t, "cdd_mvp", programs[1].ID)
	assert.Equal(t, "Completed", programs[1].Data["status"])

	risks := byType(batch.Entities, models.EntityTypeRisk)
	assert.Len(t, risks, 2) // issue, delay
}

func TestWikiSource_NothingReadable(t *testing.T) {
	tools := &fakeTools{answers: map[string]func(map[string]any) (string, error){
		WikiFetchTool: func(map[string]any) (string, error) { return "", errors.New("forbidden") },
	}}
	_, err := NewWikiSource(tools, WikiConfig{PageIDs: []string{"a"}}, testLogger()).Fetch(context.Background(), time.Time{})
	assert.ErrorContains(t, err, "forbidden")
}

// --- filings ---

const submissionsJSON = `{
  "cik": "1136893",
  "filings": {"recent": {
    "accessionNumber": ["0001136893-26-000010", "0001136893-26-000009", "0001136893-25-000001"],
    "filingDate": ["2026-02-20", "2026-02-01", "2025-06-01"],
    "form": ["8-K", "10-Q", "4"],
    "primaryDocument": ["fis-8k.htm", "fis-10q.htm", "form4.xml"],
    "primaryDocDescription": ["Results of operations", "", "Statement of changes"]
  }}
}`

func TestFilingsSource_Fetch(t *testing.T) {
	var gotUA, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA, gotPath = r.Header.Get("User-Agent"), r.URL.Path
		_, _ = w.Write([]byte(submissionsJSON))
	}))
	defer srv.Close()

	src := NewFilingsSource(FilingsConfig{
		CIK:        "1136893",
		Company:    "ACME",
		BaseURL:    srv.URL,
		ArchiveURL: "https://archive.test/data",
	}, testLogger())

	since := time.Date(2026, 2, 1, 15, 0, 0, 0, time.UTC)
	batch, err := src.Fetch(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "/submissions/CIK0001136893.json", gotPath)
	assert.Equal(t, DefaultUserAgent, gotUA)
	require.Len(t, batch.Entities, 2)

	k8 := batch.Entities[0]
	assert.Equal(t, models.EntityTypeExternalEvent, k8.Type)
	assert.Equal(t, "https://archive.test/data/1136893/000113689326000010/fis-8k.htm", k8.ID)
	assert.Equal(t, "SEC Filing (8-K)", k8.Data["event_type"])
	assert.Equal(t, "High", k8.Data["significance"])
	assert.Equal(t, "ACME 8-K Filing", k8.Data["title"])
	assert.Equal(t, "Results of operations", k8.Data["description"])

	q := batch.Entities[1]
	assert.Equal(t, "SEC Filing (10-Q)", q.Data["event_type"])
	assert.Equal(t, "ACME filed 10-Q with SEC", q.Data["description"])
}

func TestFilingsSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFilingsSource(FilingsConfig{CIK: "1", BaseURL: srv.URL}, testLogger()).Fetch(context.Background(), time.Time{})
	assert.ErrorContains(t, err, "403")

	_, err = NewFilingsSource(FilingsConfig{}, testLogger()).Fetch(context.Background(), time.Time{})
	assert.Error(t, err)
}

func TestFilingEventType(t *testing.T) {
	assert.Equal(t, "SEC Filing (10-K)", FilingEventType("10-K"))
	assert.Equal(t, "Proxy Statement", FilingEventType("DEF 14A"))
	assert.Equal(t, "Insider Trading Report", FilingEventType("4"))
	assert.Equal(t, "SEC Filing", FilingEventType("S-8"))
	assert.Equal(t, "0000000042", padCIK("42"))
}

// --- news ---

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>news</title>
<item><title><![CDATA[ACME acquires Payments Startup]]></title><link>https://news.test/1</link>
<pubDate>Mon, 16 Feb 2026 10:00:00 GMT</pubDate><source url="https://wire.test">Wire</source></item>
<item><title>ACME names new CFO</title><link>https://news.test/2</link>
<pubDate>Sun, 15 Feb 2026 10:00:00 GMT</pubDate></item>
<item><title>Old story</title><link>https://news.test/3</link>
<pubDate>Fri, 02 Jan 2026 10:00:00 GMT</pubDate></item>
</channel></rss>`

func TestParseFeed(t *testing.T) {
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	items, err := ParseFeed([]byte(feedXML), now.Add(-7*24*time.Hour), now, 20)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ACME acquires Payments Startup", items[0].Title)
	assert.Equal(t, "Wire", items[0].Source)
	assert.Equal(t, "News", items[1].Source)

	items, err = ParseFeed([]byte(feedXML), time.Time{}, now, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = ParseFeed([]byte("<rss><channel>"), time.Time{}, now, 1)
	assert.Error(t, err)
}

func TestNewsSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	src := NewNewsSource(NewsConfig{FeedURL: srv.URL}, testLogger())
	batch, err := src.Fetch(context.Background(), time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, batch.Entities, 2)

	assert.Equal(t, "https://news.test/1", batch.Entities[0].ID)
	assert.Equal(t, "M&A", batch.Entities[0].Data["event_type"])
	assert.Equal(t, "High", batch.Entities[0].Data["significance"])
	assert.Equal(t, "Executive Change", batch.Entities[1].Data["event_type"])
}

func TestNewsEventType(t *testing.T) {
	assert.Equal(t, "Financial Results", NewsEventType("Q4 earnings beat"))
	assert.Equal(t, "Partnership Announcement", NewsEventType("New collaboration with bank"))
	assert.Equal(t, "News Article", NewsEventType("Office opening"))
}

// --- files ---

func TestParseEntities(t *testing.T) {
	list := `
- entity_type: stakeholder
  entity_id: ceo@acme.com
  data:
    name: Pat
    role: CEO
- entity_type: program
  data:
    name: Agent Factory
    status: Blocked
`
	ents, err := ParseEntities([]byte(list))
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "ceo@acme.com", ents[0].ID)
	assert.Equal(t, "CEO", ents[0].Data.String("role"))
	assert.Equal(t, "agent_factory", ents[1].ID)

	doc := `{"entities": [{"entity_type": "risk", "entity_id": "r1", "data": {"severity": "High"}}]}`
	ents, err = ParseEntities([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "High", ents[0].Data.String("severity"))

	ents, err = ParseEntities(nil)
	require.NoError(t, err)
	assert.Empty(t, ents)

	_, err = ParseEntities([]byte("just a string"))
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  - entity_type: timeline\n    data: {milestone: Go Live}\n"), 0o600))

	src := NewFileSource([]string{path}, testLogger())
	batch, err := src.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, batch.Entities, 1)
	assert.Equal(t, "go_live", batch.Entities[0].ID)

	_, err = NewFileSource([]string{filepath.Join(dir, "missing.yaml")}, testLogger()).Fetch(context.Background(), time.Time{})
	assert.Error(t, err)
}

// --- extractor ---

func TestParseExtraction(t *testing.T) {
	resp := "```json\n" + `[
		{"entity_type": "stakeholder", "data": {"name": "Pat Lee", "role": "CFO", "email": "pat@acme.com"}},
		{"entity_type": "external_event", "data": {"title": "ignored"}},
		{"entity_type": "weather", "data": {"x": 1}},
		{"entity_type": "risk", "data": {}}
	]` + "\n```"
	ents, err := ParseExtraction(resp)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "pat@acme.com", ents[0].ID)

	_, err = ParseExtraction("not json")
	assert.Error(t, err)
}

func TestClaudeExtractor(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			prompt = req.Messages[0].Content[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5",
			"content":[{"type":"text","text":"[{\"entity_type\":\"program\",\"data\":{\"name\":\"CDD MVP\",\"status\":\"At Risk\"}}]"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":20}}`))
	}))
	defer srv.Close()

	ex := NewClaudeExtractor("test-key", "claude-haiku-4-5", "ACME", testLogger(),
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	ents, err := ex.Extract(context.Background(), "CDD <b>is</b> at risk")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "cdd_mvp", ents[0].ID)
	assert.Contains(t, prompt, "CDD &lt;b&gt;is&lt;/b&gt; at risk")
	assert.Contains(t, prompt, "about ACME")

	ents, err = ex.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, ents)
}

func TestClaudeExtractor_APIErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex := NewClaudeExtractor("k", "m", "ACME", testLogger(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	ents, err := ex.Extract(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, ents)
}

// --- runner ---

type funcSource struct {
	name string
	fn   func(ctx context.Context) (Batch, error)
}

func (f funcSource) Name() string { return f.name }
func (f funcSource) Fetch(ctx context.Context, _ time.Time) (Batch, error) {
	return f.fn(ctx)
}

func TestRunner_Run(t *testing.T) {
	ok := funcSource{name: "ok", fn: func(context.Context) (Batch, error) {
		return Batch{Items: 3, Entities: []models.Entity{{Type: models.EntityTypeRisk, ID: "r"}}}, nil
	}}
	bad := funcSource{name: "bad", fn: func(context.Context) (Batch, error) {
		return Batch{}, errors.New("boom")
	}}
	slow := funcSource{name: "slow", fn: func(ctx context.Context) (Batch, error) {
		<-ctx.Done()
		return Batch{}, ctx.Err()
	}}
	panicky := funcSource{name: "panicky", fn: func(context.Context) (Batch, error) {
		panic("adapter bug")
	}}

	r := NewRunner([]Source{ok, bad, slow, panicky}, 20*time.Millisecond, testLogger())
	assert.Equal(t, []string{"ok", "bad", "slow", "panicky"}, r.Sources())

	res := r.Run(context.Background(), time.Time{})
	require.Len(t, res.Runs, 4)
	assert.Equal(t, models.StatusPartial, res.Status)
	assert.Len(t, res.Entities, 1)

	assert.Equal(t, models.StatusSuccess, res.Runs[0].Status)
	assert.Equal(t, 3, res.Runs[0].ItemsIngested)
	assert.Equal(t, 1, res.Runs[0].Entities)
	assert.Equal(t, "boom", res.Runs[1].Error)
	assert.Equal(t, models.StatusFailed, res.Runs[2].Status)
	assert.Contains(t, res.Runs[3].Error, "panicked")
}

func TestRunner_AllFail(t *testing.T) {
	bad := funcSource{name: "bad", fn: func(context.Context) (Batch, error) { return Batch{}, errors.New("x") }}
	res := NewRunner([]Source{bad}, 0, testLogger()).Run(context.Background(), time.Time{})
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Entities)
}
