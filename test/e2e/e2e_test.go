//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/seed"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBaseURL = "http://localhost:8080"
	candidateID    = "e2e-candidate"
	cheaterID      = "e2e-cheater"
	graderID       = "e2e-grader"
	racerID        = "e2e-racer"
)

var (
	baseURL        string
	candidateToken string
	cheaterToken   string
	racerToken     string
	adminToken     string

	// db stays open for assertions against the stored rows.
	db *pgxpool.Pool
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := config.Load()
	var err error
	if db, err = setupDatabase(cfg.DatabaseURL); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	auth := service.NewAuthService(cfg)
	if candidateToken, err = auth.IssueToken(candidateID, service.TokenRoleCandidate, nil, time.Hour); err != nil {
		fmt.Printf("Token failed: %v\n", err)
		os.Exit(1)
	}
	cheaterToken, _ = auth.IssueToken(cheaterID, service.TokenRoleCandidate, nil, time.Hour)
	racerToken, _ = auth.IssueToken(racerID, service.TokenRoleCandidate, nil, time.Hour)
	adminToken, _ = auth.IssueToken(graderID, service.TokenRoleAdmin, []string{service.ScopeAll}, time.Hour)

	code := m.Run()
	db.Close()
	os.Exit(code)
}

// setupDatabase clears the session tables and loads the built-in bank.
func setupDatabase(dbURL string) (*pgxpool.Pool, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if err := seedDatabase(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func seedDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range []string{"exam_results", "cheat_events", "answers", "exam_sessions"} {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}

	questions, err := seed.Questions()
	if err != nil {
		return err
	}
	if _, err := repository.NewQuestionRepository(pool).Upsert(ctx, questions); err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	templates, err := seed.Templates()
	if err != nil {
		return err
	}
	repo := repository.NewExamTemplateRepository(pool)
	for i := range templates {
		if err := repo.Upsert(ctx, &templates[i]); err != nil {
			return fmt.Errorf("seed template: %w", err)
		}
	}
	return nil
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type startedExam struct {
	SessionID string `json:"session_id"`
	Questions []struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Options []struct {
			Key string `json:"key"`
		} `json:"options"`
	} `json:"questions"`
	RemainingSeconds int `json:"remaining_seconds"`
}

func TestE2EExamFlow(t *testing.T) {
	var exam startedExam

	t.Run("StartExam", func(t *testing.T) {
		resp := post(t, "/api/v1/exam/sessions", map[string]string{"role": "backend", "language": "java"}, candidateToken)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decode[startedExam](t, resp)
		exam = body.Data
		require.NotEmpty(t, exam.SessionID)
		assert.Len(t, exam.Questions, 15)
		assert.Positive(t, exam.RemainingSeconds)
	})

	t.Run("InProgress", func(t *testing.T) {
		resp := get(t, "/api/v1/exam/sessions/in-progress", candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[struct {
			InProgress bool `json:"in_progress"`
		}](t, resp)
		assert.True(t, body.Data.InProgress)
	})

	t.Run("Heartbeat", func(t *testing.T) {
		resp := post(t, sessionPath(exam.SessionID, "heartbeat"), nil, candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[struct {
			Status string `json:"status"`
		}](t, resp)
		assert.Equal(t, "in_progress", body.Data.Status)
	})

	t.Run("AnswerEveryQuestion", func(t *testing.T) {
		for _, q := range exam.Questions {
			var answer any = "Cache hot rows, queue writes, shard by tenant."
			if q.Type != "essay" {
				answer = q.Options[0].Key
			}
			resp := post(t, sessionPath(exam.SessionID, "answers"), map[string]any{"question_id": q.ID, "answer": answer}, candidateToken)
			require.Equal(t, http.StatusOK, resp.StatusCode, readBody(resp))
			resp.Body.Close()
		}
	})

	t.Run("OneTabSwitchWarns", func(t *testing.T) {
		resp := post(t, sessionPath(exam.SessionID, "events"), map[string]string{"event_type": "tab_switch"}, candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[model.CheatOutcome](t, resp)
		assert.True(t, body.Data.Counted)
		assert.Equal(t, 1, body.Data.WarningCount)
		assert.False(t, body.Data.Terminated)
	})

	t.Run("Submit", func(t *testing.T) {
		resp := post(t, sessionPath(exam.SessionID, "submit"), nil, candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[struct {
			Status string `json:"status"`
		}](t, resp)
		assert.Equal(t, "completed", body.Data.Status)
	})

	t.Run("AnswersAfterSubmitAreRejected", func(t *testing.T) {
		resp := post(t, sessionPath(exam.SessionID, "answers"), map[string]any{"question_id": exam.Questions[0].ID, "answer": "A"}, candidateToken)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("GradePendingEssays", func(t *testing.T) {
		resp := get(t, "/api/v1/admin/grading/pending", adminToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[[]model.PendingSession](t, resp)

		for _, s := range body.Data {
			if s.SessionID.String() != exam.SessionID {
				continue
			}
			for _, e := range s.Essays {
				resp := post(t, "/api/v1/admin/grading/scores", map[string]any{
					"session_id":  e.SessionID,
					"question_id": e.QuestionID,
					"score":       e.Weight,
				}, adminToken)
				require.Equal(t, http.StatusOK, resp.StatusCode, readBody(resp))
				resp.Body.Close()
			}
		}
	})

	t.Run("Result", func(t *testing.T) {
		resp := get(t, sessionPath(exam.SessionID, "result"), candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[struct {
			Result model.ExamResult `json:"result"`
		}](t, resp)
		assert.Zero(t, body.Data.Result.PendingEssays)
		assert.NotEmpty(t, body.Data.Result.EstimatedLevel)
		assert.GreaterOrEqual(t, body.Data.Result.TotalScore, 0)
		assert.LessOrEqual(t, body.Data.Result.TotalScore, 100)
	})

	t.Run("OtherCandidateCannotRead", func(t *testing.T) {
		resp := get(t, sessionPath(exam.SessionID, "result"), cheaterToken)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("AdminListsResults", func(t *testing.T) {
		resp := get(t, "/api/v1/admin/results?page=1&per_page=50", adminToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, readBody(resp), exam.SessionID)
	})
}

func TestE2ETabSwitchingTerminates(t *testing.T) {
	resp := post(t, "/api/v1/exam/sessions", map[string]string{"role": "tester"}, cheaterToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	exam := decode[startedExam](t, resp).Data

	var last model.CheatOutcome
	for range 3 {
		resp := post(t, sessionPath(exam.SessionID, "events"), map[string]string{"event_type": "tab_switch"}, cheaterToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		last = decode[model.CheatOutcome](t, resp).Data
	}
	assert.True(t, last.Terminated)
	assert.Equal(t, model.SessionStatusTerminated, last.Status)

	resp = post(t, sessionPath(exam.SessionID, "heartbeat"), nil, cheaterToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[model.SessionDirectives](t, resp).Data.ShouldTerminate)

	resp = post(t, sessionPath(exam.SessionID, "answers"), map[string]any{"question_id": exam.Questions[0].ID, "answer": "A"}, cheaterToken)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	events := get(t, "/api/v1/admin/sessions/"+exam.SessionID+"/events", adminToken)
	require.Equal(t, http.StatusOK, events.StatusCode)
	assert.Len(t, decode[[]model.CheatEvent](t, events).Data, 3)
}

func TestE2EConcurrentStartsLeaveOneActiveSession(t *testing.T) {
	const n = 8
	var (
		wg    sync.WaitGroup
		codes = make([]int, n)
		errs  = make([]error, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i], errs[i] = send(http.MethodPost, "/api/v1/exam/sessions", map[string]string{"role": "backend", "language": "java"}, racerToken)
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusCreated, codes[i])
	}

	ctx := context.Background()
	var active, superseded int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE candidate_id = $1 AND status = 'in_progress'`,
		racerID).Scan(&active))
	require.NoError(t, db.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE candidate_id = $1 AND end_reason = 'superseded'`,
		racerID).Scan(&superseded))
	assert.Equal(t, 1, active)
	assert.Equal(t, n-1, superseded)
}

func TestE2EDoubleSubmitStoresOneResult(t *testing.T) {
	resp := post(t, "/api/v1/exam/sessions", map[string]string{"role": "frontend"}, racerToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, readBody(resp))
	exam := decode[startedExam](t, resp).Data

	var (
		wg    sync.WaitGroup
		codes [2]int
		errs  [2]error
	)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i], errs[i] = send(http.MethodPost, sessionPath(exam.SessionID, "submit"), nil, racerToken)
		}()
	}
	wg.Wait()
	for i := range codes {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, codes[i])
	}

	// A late third submit still answers with the stored outcome.
	resp = post(t, sessionPath(exam.SessionID, "submit"), nil, racerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, readBody(resp))
	resp.Body.Close()

	var results int
	require.NoError(t, db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM exam_results WHERE session_id = $1`, exam.SessionID).Scan(&results))
	assert.Equal(t, 1, results)
}

func TestE2EHealth(t *testing.T) {
	resp := get(t, "/health", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Helpers

func sessionPath(id, action string) string {
	return "/api/v1/exam/sessions/" + id + "/" + action
}

func post(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(jsonBytes)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return do(t, req, token)
}

func get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	require.NoError(t, err)
	return do(t, req, token)
}

func do(t *testing.T, req *http.Request, token string) *http.Response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// send is safe to call from goroutines: it reports failures instead of
// stopping the test.
func send(method, path string, body any, token string) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}
	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decode[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()
	defer resp.Body.Close()
	var body envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
