package service

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stretchr/testify/require"
)

var allRoles = []string{"frontend", "backend", "fullstack", "tester"}

func choiceQuestion(dim model.Dimension, diff model.Difficulty, correct ...string) model.Question {
	typ := model.QuestionTypeSingle
	if len(correct) > 1 {
		typ = model.QuestionTypeMultiple
	}
	return model.Question{
		ID:              uuid.New(),
		Content:         "question " + string(dim) + " " + string(diff),
		Type:            typ,
		Options:         []model.Option{{Key: "a", Text: "A"}, {Key: "b", Text: "B"}, {Key: "c", Text: "C"}, {Key: "d", Text: "D"}},
		CorrectAnswer:   correct,
		Dimension:       dim,
		Difficulty:      diff,
		Weight:          1,
		ApplicableRoles: allRoles,
		Explanation:     "explained",
	}
}

func essayQuestion(dim model.Dimension, diff model.Difficulty, weight int) model.Question {
	return model.Question{
		ID:              uuid.New(),
		Content:         "essay " + string(dim),
		Type:            model.QuestionTypeEssay,
		Dimension:       dim,
		Difficulty:      diff,
		Weight:          weight,
		ApplicableRoles: allRoles,
		ReferenceAnswer: "reference",
	}
}

// bank builds n choice questions of the given difficulty spread across dimensions.
func bank(n int, diff model.Difficulty) []model.Question {
	out := make([]model.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, choiceQuestion(model.AllDimensions[i%len(model.AllDimensions)], diff, "a"))
	}
	return out
}

func testExamConfig() config.ExamConfig {
	return config.ExamConfig{
		QuestionCount:      15,
		MinQuestionCount:   10,
		EasyPerDimension:   2,
		MediumPerDimension: 1,
		DurationMinutes:    30,
		PassingScore:       60,
		EssayMaxChars:      150,
		WarningThreshold:   3,
		IdleTimeout:        300 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		WeightingScheme:    "equal_20",
		PaperCacheGrace:    time.Hour,
		RescoreMaxAttempts: 3,
	}
}

func testTemplate() *model.ExamTemplate {
	lang := "typescript"
	return &model.ExamTemplate{
		ID:                 uuid.New(),
		Name:               "Backend TypeScript",
		Role:               "backend",
		Language:           &lang,
		DurationMinutes:    30,
		PassingScore:       60,
		QuestionCount:      15,
		MinQuestionCount:   10,
		EasyPerDimension:   2,
		MediumPerDimension: 1,
		WeightingScheme:    "equal_20",
		DimensionWeights:   model.WeightingSchemes["equal_20"],
		LevelThresholds:    model.DefaultLevelThresholds,
		IsActive:           true,
	}
}

func seededSelector() *Selector {
	return NewSelector(rand.NewPCG(1, 2))
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// clock is a controllable time source.
type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func countBy(qs []model.Question, diff model.Difficulty) int {
	n := 0
	for _, q := range qs {
		if q.Difficulty == diff {
			n++
		}
	}
	return n
}

func mustNoDuplicates(t *testing.T, qs []model.Question) {
	t.Helper()
	seen := map[uuid.UUID]bool{}
	for _, q := range qs {
		if seen[q.ID] {
			t.Fatalf("duplicate question %s", q.ID)
		}
		seen[q.ID] = true
	}
}

// engine wires every service over the in-memory stores and a fixed clock.
type engine struct {
	store    *memStore
	cache    *memCache
	clock    *clock
	tmpl     *model.ExamTemplate
	scoring  *ScoringService
	sessions *ExamSessionService
	answers  *AnswerService
	cheats   *AntiCheatService
	grading  *GradingService
}

const candidate = "cand-001"

var backendTS = model.SelectionFilter{Role: "backend", Language: "typescript"}

// exactPool is a pool the default plan consumes completely: 10 easy and 5 medium.
func exactPool() []model.Question {
	return append(bank(10, model.DifficultyEasy), bank(5, model.DifficultyMedium)...)
}

func newEngine(t *testing.T, pool []model.Question) *engine {
	t.Helper()
	e := &engine{
		store: newMemStore(),
		cache: newMemCache(),
		clock: newClock(),
		tmpl:  testTemplate(),
	}
	e.store.templates = append(e.store.templates, e.tmpl)
	e.store.addQuestions(pool...)

	cfg := testExamConfig()
	st := e.store.stores()
	m := testMetrics()
	log := testLogger()

	e.scoring = NewScoringService(st, e.cache, cfg, m, log)
	e.sessions = NewExamSessionService(st, e.cache, e.scoring, seededSelector(), cfg, m, log)
	e.answers = NewAnswerService(e.sessions, st, e.cache, cfg, m, log)
	e.cheats = NewAntiCheatService(e.sessions, st, e.cache, cfg, m, log)
	e.grading = NewGradingService(st, e.cache, e.scoring, log)

	e.scoring.now = e.clock.Now
	e.sessions.now = e.clock.Now
	e.answers.now = e.clock.Now
	e.cheats.now = e.clock.Now
	e.grading.now = e.clock.Now
	return e
}

func (e *engine) start(t *testing.T) *StartedExam {
	t.Helper()
	started, err := e.sessions.StartExam(context.Background(), candidate, backendTS)
	require.NoError(t, err)
	return started
}

// question returns the full question behind a paper entry.
func (e *engine) question(id uuid.UUID) model.Question {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.questions[id]
}

// firstOfType finds a selected question of the given type.
func (e *engine) firstOfType(t *testing.T, started *StartedExam, typ model.QuestionType) model.Question {
	t.Helper()
	for _, p := range started.Questions {
		if p.Type == typ {
			return e.question(p.ID)
		}
	}
	t.Fatalf("no %s question selected", typ)
	return model.Question{}
}

func tabSwitch() model.CheatEventRequest {
	return model.CheatEventRequest{EventType: model.CheatEventTabSwitch}
}
