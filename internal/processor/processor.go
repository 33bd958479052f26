package processor

import (
	"context"
	"strings"
	"time"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
	"github.com/marcandre22/ready-mix-coach/internal/assistant"
	"github.com/marcandre22/ready-mix-coach/internal/dataset"
	"github.com/marcandre22/ready-mix-coach/internal/intent"
	"github.com/marcandre22/ready-mix-coach/internal/logger"
	"github.com/marcandre22/ready-mix-coach/internal/metrics"
	"github.com/marcandre22/ready-mix-coach/internal/types"
	"github.com/marcandre22/ready-mix-coach/internal/window"
)

// Source says which stage produced an answer.
type Source string

const (
	SourceIntent      Source = "intent"
	SourceClarify     Source = "clarify"
	SourceAssistant   Source = "assistant"
	SourceUnavailable Source = "unavailable"
)

const blankQuestionHint = "Ask me anything about the fleet, for example \"total volume today\" or \"which driver added the most water this week\"."

type Request struct {
	Question string                    `json:"question"`
	History  types.ConversationHistory `json:"history"`
	Filter   dataset.Filter            `json:"filter"`
}

// Result is returned by Ask
type Result struct {
	Answer      string                      `json:"answer"`
	Source      Source                      `json:"source"`
	Intent      string                      `json:"intent,omitempty"`
	Notice      string                      `json:"notice,omitempty"`
	Unavailable *assistant.UnavailableError `json:"-"`
	Error       string                      `json:"error,omitempty"`
	Evidence    map[string]interface{}      `json:"evidence"`
	History     types.ConversationHistory   `json:"history"`
	DurationMs  int64                       `json:"duration_ms"`
}

// Options tunes a Coach. Cache enables the snapshot cache; Clock defaults
// to time.Now.
type Options struct {
	OpMinutes    float64
	BenchmarkPct float64
	Cache        bool
	Guidelines   assistant.Guidelines
	Clock        func() time.Time
	Location     *time.Location
	Log          *logger.Logger
	Metrics      *metrics.Metrics
}

// Coach runs the per-question pipeline: slice, aggregate, match or delegate.
type Coach struct {
	store      *dataset.Holder
	assistant  assistant.Assistant
	matcher    intent.Matcher
	guidelines assistant.Guidelines
	opMinutes  float64
	cache      *SnapshotCache
	clock      func() time.Time
	loc        *time.Location
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func New(store *dataset.Holder, asst assistant.Assistant, opts Options) *Coach {
	c := &Coach{
		store:      store,
		assistant:  asst,
		matcher:    intent.New(opts.BenchmarkPct),
		guidelines: opts.Guidelines,
		opMinutes:  opts.OpMinutes,
		clock:      opts.Clock,
		loc:        opts.Location,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
	if c.opMinutes <= 0 {
		c.opMinutes = aggregator.DefaultOpMinutes
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.log == nil {
		c.log = logger.New()
	}
	c.log = c.log.Component("processor")
	if c.guidelines.Persona == "" {
		c.guidelines = assistant.DefaultGuidelines()
	}
	if opts.Cache {
		c.cache = NewSnapshotCache(64)
	}
	return c
}

// Now is the coach clock in the configured location.
func (c *Coach) Now() time.Time { return c.clock().In(c.loc) }

func (c *Coach) Guidelines() assistant.Guidelines { return c.guidelines }

func (c *Coach) BenchmarkPct() float64 { return c.matcher.BenchmarkPct }

// Snapshot computes (or reuses) the KPI snapshot for f at now.
func (c *Coach) Snapshot(f dataset.Filter, now time.Time) *aggregator.Snapshot {
	return c.snapshotOf(c.store.Current(), f, now)
}

func (c *Coach) snapshotOf(store *dataset.Store, f dataset.Filter, now time.Time) *aggregator.Snapshot {
	compute := func() *aggregator.Snapshot {
		tickets := store.Tickets
		if !f.IsZero() {
			tickets = f.Apply(tickets)
		}
		return aggregator.ComputeKPIs(tickets, now, c.opMinutes)
	}
	if c.cache == nil {
		return compute()
	}
	key := CacheKey{Version: store.Version, Filter: f.Key(), Minute: now.Truncate(time.Minute).Unix()}
	return c.cache.GetOrCompute(key, compute)
}

// CacheStats reports the snapshot cache; ok is false when caching is off.
func (c *Coach) CacheStats() (stats CacheStats, ok bool) {
	if c.cache == nil {
		return CacheStats{}, false
	}
	return c.cache.Stats(), true
}

// Ask answers one question. It never returns an error: failures are folded
// into the Result.
func (c *Coach) Ask(ctx context.Context, req Request) Result {
	start := time.Now()
	now := c.Now()
	q := strings.TrimSpace(req.Question)
	log := c.log.WithField("question", q)

	res := Result{History: req.History}
	finish := func() Result {
		res.DurationMs = time.Since(start).Milliseconds()
		if res.Source != SourceUnavailable && q != "" {
			res.History = req.History.
				With(types.Message{Role: types.RoleUser, Content: q}).
				With(types.Message{Role: types.RoleAssistant, Content: res.Answer})
		}
		c.metrics.Question(string(res.Source))
		log.WithFields(map[string]interface{}{
			"source":      res.Source,
			"intent":      res.Intent,
			"duration_ms": res.DurationMs,
		}).Info("question answered")
		return res
	}

	if q == "" {
		res.Source, res.Answer = SourceClarify, blankQuestionHint
		return finish()
	}

	store := c.store.Current()
	snap := c.snapshotOf(store, req.Filter, now)
	res.Evidence = evidence(snap, store.Version, req.Filter)

	if a, ok := c.matcher.Match(q, snap); ok {
		res.Source, res.Intent, res.Answer = SourceIntent, a.Intent, a.Text
		return finish()
	}
	if prompt, ok := intent.MissingParameter(q); ok {
		res.Source, res.Answer = SourceClarify, prompt
		if name, ok := intent.Triggered(q); ok {
			res.Intent = name
		}
		return finish()
	}

	if c.assistant == nil {
		res.Source, res.Answer = SourceUnavailable, assistant.FallbackMessage
		res.Notice = "No assistant is configured."
		return finish()
	}

	sysCtx := assistant.BuildSystemContext(c.guidelines, snap)
	callStart := time.Now()
	answer, err := c.assistant.Ask(ctx, sysCtx, req.History, q)
	c.metrics.AssistantCall(time.Since(callStart))
	if err != nil {
		u := assistant.AsUnavailable(err)
		log.WithError(err).Warn("assistant unavailable")
		res.Source, res.Answer = SourceUnavailable, assistant.FallbackMessage
		res.Unavailable = u
		res.Error = u.Error()
		res.Notice = "The assistant didn't respond. Please retry in a moment."
		if u.Timeout {
			res.Notice = "The assistant timed out. Please retry in a moment."
		}
		return finish()
	}
	res.Source, res.Answer = SourceAssistant, answer
	return finish()
}

// evidence is the small fact sheet shown next to an answer.
func evidence(snap *aggregator.Snapshot, version uint64, f dataset.Filter) map[string]interface{} {
	today := snap.For(window.Today)
	week := snap.For(window.Last7d)
	return map[string]interface{}{
		"dataset_version":   version,
		"now":               snap.Now.Format(time.RFC3339),
		"loads_today":       today.Loads,
		"volume_today_m3":   today.TotalVolumeM3,
		"loads_last_7d":     week.Loads,
		"utilization_today": today.UtilizationPct,
		"avg_wait_last_7d":  week.AvgWaitMin,
		"filter":            f.Key(),
	}
}
