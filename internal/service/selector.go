package service

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// SelectionPlan is the stratified target for one exam.
type SelectionPlan struct {
	Total   int
	Easy    int
	Medium  int
	Minimum int
}

// PlanFor derives the plan from a template: per-dimension easy/medium counts
// are pooled across all dimensions.
func PlanFor(t *model.ExamTemplate) SelectionPlan {
	dims := len(model.AllDimensions)
	return SelectionPlan{
		Total:   t.QuestionCount,
		Easy:    t.EasyPerDimension * dims,
		Medium:  t.MediumPerDimension * dims,
		Minimum: t.MinQuestionCount,
	}
}

// Selection is the selector's output.
type Selection struct {
	Questions []model.Question
	Shortfall int
	Warnings  []string
}

// IDs returns the selected question ids in paper order.
func (s *Selection) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Questions))
	for i := range s.Questions {
		ids[i] = s.Questions[i].ID
	}
	return ids
}

// Selector samples a stratified question set. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector drawing from src. Pass a seeded source in
// tests for reproducible papers.
func NewSelector(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// Select filters pool by role/language and runs the three sampling passes:
// pooled easy, then medium, then an easy→medium→hard backfill up to the total.
func (s *Selector) Select(pool []model.Question, filter model.SelectionFilter, plan SelectionPlan) (*Selection, error) {
	eligible := make([]model.Question, 0, len(pool))
	seen := make(map[uuid.UUID]struct{}, len(pool))
	for _, q := range pool {
		if _, dup := seen[q.ID]; dup || !q.Matches(filter.Role, filter.Language) {
			continue
		}
		seen[q.ID] = struct{}{}
		eligible = append(eligible, q)
	}

	tiers := map[model.Difficulty][]model.Question{}
	for _, q := range eligible {
		tiers[q.Difficulty] = append(tiers[q.Difficulty], q)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sel := &Selection{}
	used := make(map[uuid.UUID]struct{}, plan.Total)
	take := func(tier model.Difficulty, want int) int {
		if room := plan.Total - len(sel.Questions); want > room {
			want = room
		}
		if want <= 0 {
			return 0
		}
		var free []model.Question
		for _, q := range tiers[tier] {
			if _, ok := used[q.ID]; !ok {
				free = append(free, q)
			}
		}
		s.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
		if want > len(free) {
			want = len(free)
		}
		for _, q := range free[:want] {
			used[q.ID] = struct{}{}
			sel.Questions = append(sel.Questions, q)
		}
		return want
	}

	if got := take(model.DifficultyEasy, plan.Easy); got < plan.Easy {
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("easy target %d, selected %d", plan.Easy, got))
	}
	if got := take(model.DifficultyMedium, plan.Medium); got < plan.Medium {
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("medium target %d, selected %d", plan.Medium, got))
	}
	for _, tier := range []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard} {
		if len(sel.Questions) >= plan.Total {
			break
		}
		take(tier, plan.Total-len(sel.Questions))
	}

	if len(sel.Questions) < plan.Minimum {
		return nil, fmt.Errorf("%w: %d eligible of minimum %d", ErrInsufficientQuestionBank, len(sel.Questions), plan.Minimum)
	}
	if len(sel.Questions) < plan.Total {
		sel.Shortfall = plan.Total - len(sel.Questions)
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("selected %d of %d questions", len(sel.Questions), plan.Total))
	}

	check := make(map[uuid.UUID]struct{}, len(sel.Questions))
	for _, q := range sel.Questions {
		if _, dup := check[q.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSelection, q.ID)
		}
		check[q.ID] = struct{}{}
	}

	s.rng.Shuffle(len(sel.Questions), func(i, j int) {
		sel.Questions[i], sel.Questions[j] = sel.Questions[j], sel.Questions[i]
	})
	return sel, nil
}
