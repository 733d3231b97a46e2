package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// MonitorService builds the admin live view of running sessions.
type MonitorService struct {
	store MonitorStore
	cfg   config.ExamConfig
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store MonitorStore, cfg config.ExamConfig) *MonitorService {
	return &MonitorService{store: store, cfg: cfg}
}

// MonitorSnapshot is the state sent when an admin opens the live stream.
type MonitorSnapshot struct {
	Sessions    []model.LiveSession `json:"sessions"`
	TotalCheats int64               `json:"total_cheats"`
}

// Snapshot lists in-progress sessions with their answered and cheat counts.
// The two counts are fetched in parallel.
func (s *MonitorService) Snapshot(ctx context.Context) (*MonitorSnapshot, error) {
	live, err := s.store.ListLive(ctx, s.cfg.MonitorSnapshotSize)
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	snapshot := &MonitorSnapshot{Sessions: live}
	if len(live) == 0 {
		snapshot.Sessions = []model.LiveSession{}
		return snapshot, nil
	}

	ids := make([]uuid.UUID, len(live))
	for i, l := range live {
		ids[i] = l.SessionID
	}

	var (
		answered    map[uuid.UUID]int64
		cheats      map[uuid.UUID]int64
		answeredErr error
		cheatErr    error
		wg          sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answered, answeredErr = s.store.AnsweredCounts(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		cheats, cheatErr = s.store.CheatCounts(ctx, ids)
	}()
	wg.Wait()

	// Answered counts are required; cheat counts are best-effort.
	if answeredErr != nil {
		return nil, fmt.Errorf("answered counts: %w", answeredErr)
	}
	for i := range snapshot.Sessions {
		snapshot.Sessions[i].AnsweredCount = answered[snapshot.Sessions[i].SessionID]
		if cheatErr == nil {
			c := cheats[snapshot.Sessions[i].SessionID]
			snapshot.Sessions[i].CheatCount = c
			snapshot.TotalCheats += c
		}
	}
	return snapshot, nil
}
