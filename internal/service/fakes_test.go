package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// memStore is an in-memory implementation of every store interface. A single
// mutex stands in for the database's row locks and transactions.
type memStore struct {
	mu        sync.Mutex
	questions map[uuid.UUID]model.Question
	templates []*model.ExamTemplate
	sessions  map[uuid.UUID]*model.ExamSession
	answers   map[[2]uuid.UUID]*model.Answer
	events    []model.CheatEvent
	results   map[uuid.UUID]*model.ExamResult

	resultWrites    int
	failUpserts     int
	failCheatCounts bool
}

func newMemStore() *memStore {
	return &memStore{
		questions: map[uuid.UUID]model.Question{},
		sessions:  map[uuid.UUID]*model.ExamSession{},
		answers:   map[[2]uuid.UUID]*model.Answer{},
		results:   map[uuid.UUID]*model.ExamResult{},
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Questions:   memQuestions{m},
		Templates:   memTemplates{m},
		Sessions:    memSessions{m},
		Answers:     memAnswers{m},
		CheatEvents: memCheats{m},
		Results:     memResults{m},
	}
}

func (m *memStore) addQuestions(qs ...model.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qs {
		m.questions[q.ID] = q
	}
}

func (m *memStore) session(id uuid.UUID) model.ExamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

func (m *memStore) eventCount(sessionID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.SessionID == sessionID {
			n++
		}
	}
	return n
}

type memQuestions struct{ m *memStore }

func (s memQuestions) ListEligible(_ context.Context, role, language string) ([]model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Question
	for _, q := range s.m.questions {
		if q.Matches(role, language) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s memQuestions) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.m.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s memQuestions) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	q, ok := s.m.questions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &q, nil
}

type memTemplates struct{ m *memStore }

func (s memTemplates) FindActive(_ context.Context, f model.SelectionFilter) (*model.ExamTemplate, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.templates {
		if !t.IsActive || t.Role != f.Role {
			continue
		}
		if t.Language != nil && *t.Language != f.Language {
			continue
		}
		return t, nil
	}
	return nil, pgx.ErrNoRows
}

func (s memTemplates) GetByID(_ context.Context, id uuid.UUID) (*model.ExamTemplate, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, t := range s.m.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memSessions struct{ m *memStore }

func (s memSessions) CreateReplacingActive(_ context.Context, sess *model.ExamSession) ([]uuid.UUID, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var superseded []uuid.UUID
	for _, other := range s.m.sessions {
		if other.CandidateID == sess.CandidateID && other.Status == model.SessionStatusInProgress {
			reason := model.EndReasonSuperseded
			end := sess.StartTime
			other.Status = model.SessionStatusTerminated
			other.EndReason = &reason
			other.EndTime = &end
			superseded = append(superseded, other.ID)
		}
	}
	sess.ID = uuid.New()
	sess.Status = model.SessionStatusInProgress
	cp := *sess
	cp.SelectedQuestions = slices.Clone(sess.SelectedQuestions)
	s.m.sessions[sess.ID] = &cp
	return superseded, nil
}

func (s memSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *sess
	return &cp, nil
}

func (s memSessions) GetActiveByCandidate(_ context.Context, candidateID string) (*model.ExamSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, sess := range s.m.sessions {
		if sess.CandidateID == candidateID && sess.Status == model.SessionStatusInProgress {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s memSessions) Transition(_ context.Context, id uuid.UUID, to model.SessionStatus, reason model.EndReason, at time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[id]
	if !ok || sess.Status != model.SessionStatusInProgress {
		return false, nil
	}
	sess.Status = to
	sess.EndReason = &reason
	sess.EndTime = &at
	return true, nil
}

type memMonitor struct{ m *memStore }

func (s memMonitor) ListLive(_ context.Context, limit int) ([]model.LiveSession, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.LiveSession
	for _, sess := range s.m.sessions {
		if sess.Status == model.SessionStatusInProgress && len(out) < limit {
			out = append(out, model.LiveSession{
				SessionID:     sess.ID,
				CandidateID:   sess.CandidateID,
				StartTime:     sess.StartTime,
				WarningCount:  sess.WarningCount,
				QuestionCount: len(sess.SelectedQuestions),
			})
		}
	}
	return out, nil
}

func (s memMonitor) AnsweredCounts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := map[uuid.UUID]int64{}
	for k := range s.m.answers {
		if slices.Contains(ids, k[0]) {
			out[k[0]]++
		}
	}
	return out, nil
}

func (s memMonitor) CheatCounts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.failCheatCounts {
		return nil, errors.New("cheat counts unavailable")
	}
	out := map[uuid.UUID]int64{}
	for _, e := range s.m.events {
		if slices.Contains(ids, e.SessionID) {
			out[e.SessionID]++
		}
	}
	return out, nil
}

type memAnswers struct{ m *memStore }

func (s memAnswers) Upsert(_ context.Context, a *model.Answer) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sess, ok := s.m.sessions[a.SessionID]
	if !ok || sess.Status != model.SessionStatusInProgress {
		return false, nil
	}
	cp := *a
	cp.ManualScore = nil
	s.m.answers[[2]uuid.UUID{a.SessionID, a.QuestionID}] = &cp
	return true, nil
}

func (s memAnswers) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Answer
	for k, a := range s.m.answers {
		if k[0] == sessionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s memAnswers) Get(_ context.Context, sessionID, questionID uuid.UUID) (*model.Answer, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.answers[[2]uuid.UUID{sessionID, questionID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s memAnswers) SetManualScore(_ context.Context, sessionID, questionID uuid.UUID, score int, graderID string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.answers[[2]uuid.UUID{sessionID, questionID}]
	if !ok {
		return pgx.ErrNoRows
	}
	a.ManualScore = &score
	a.GradedBy = &graderID
	a.GradedAt = &at
	return nil
}

func (s memAnswers) ListPendingEssays(_ context.Context) ([]model.PendingEssay, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.PendingEssay
	for k, a := range s.m.answers {
		q := s.m.questions[k[1]]
		sess := s.m.sessions[k[0]]
		superseded := sess.EndReason != nil && *sess.EndReason == model.EndReasonSuperseded
		if q.Type != model.QuestionTypeEssay || a.ManualScore != nil || !sess.Status.IsTerminal() || superseded {
			continue
		}
		out = append(out, model.PendingEssay{
			SessionID:   sess.ID,
			CandidateID: sess.CandidateID,
			QuestionID:  q.ID,
			Content:     q.Content,
			Weight:      q.Weight,
			UserAnswer:  a.UserAnswer.Text,
			AnsweredAt:  a.AnsweredAt,
		})
	}
	return out, nil
}

type memCheats struct{ m *memStore }

func (s memCheats) Append(_ context.Context, e *model.CheatEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.events = append(s.m.events, *e)
	return nil
}

func (s memCheats) AppendCounted(_ context.Context, e *model.CheatEvent) (int, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.events = append(s.m.events, *e)
	sess, ok := s.m.sessions[e.SessionID]
	if !ok {
		return 0, false, pgx.ErrNoRows
	}
	if sess.Status != model.SessionStatusInProgress {
		return sess.WarningCount, false, nil
	}
	sess.WarningCount++
	return sess.WarningCount, true, nil
}

func (s memCheats) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.CheatEvent
	for _, e := range s.m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memResults struct{ m *memStore }

func (s memResults) Upsert(_ context.Context, r *model.ExamResult) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.failUpserts > 0 {
		s.m.failUpserts--
		return errors.New("store unavailable")
	}
	cp := *r
	s.m.results[r.SessionID] = &cp
	s.m.resultWrites++
	return nil
}

func (s memResults) GetBySession(_ context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.results[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (s memResults) List(_ context.Context, page, perPage int) ([]model.ResultSummary, int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.ResultSummary
	for _, r := range s.m.results {
		out = append(out, model.ResultSummary{ExamResult: *r, Status: s.m.sessions[r.SessionID].Status})
	}
	total := int64(len(out))
	from := min((page-1)*perPage, len(out))
	to := min(from+perPage, len(out))
	return out[from:to], total, nil
}

// memCache records everything the services push to Redis.
type memCache struct {
	mu        sync.Mutex
	papers    map[uuid.UUID][]model.QuestionForCandidate
	cheats    []model.CheatEvent
	rescores  []uuid.UUID
	published []model.MonitorEvent
	failQueue bool
}

func newMemCache() *memCache {
	return &memCache{papers: map[uuid.UUID][]model.QuestionForCandidate{}}
}

func (c *memCache) SetPaper(_ context.Context, id uuid.UUID, paper []model.QuestionForCandidate, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.papers[id] = paper
	return nil
}

func (c *memCache) GetPaper(_ context.Context, id uuid.UUID) ([]model.QuestionForCandidate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.papers[id]
	return p, ok, nil
}

func (c *memCache) EnqueueCheatEvent(_ context.Context, e *model.CheatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failQueue {
		return errors.New("redis down")
	}
	c.cheats = append(c.cheats, *e)
	return nil
}

func (c *memCache) EnqueueRescore(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rescores = append(c.rescores, id)
	return nil
}

func (c *memCache) Publish(_ context.Context, ev model.MonitorEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, ev)
	return nil
}

func (c *memCache) queuedCheats() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cheats)
}
