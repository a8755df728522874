package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"soundforge/internal/domain"
)

type stubExecutor struct {
	rowErr error
	exec   struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, nil
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{err: s.rowErr}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	err error
}

func (r stubRow) Scan(dest ...any) error {
	return r.err
}

func TestCreateRecordArgs(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	job := &domain.Job{
		ID: "gen_abc",
		Request: domain.GenerationRequest{
			Prompt: "ambient drone", Duration: 12, Temperature: 0.8, Model: domain.DefaultModel,
		},
		Status:    domain.JobStatusPending,
		Step:      domain.JobStepQueued,
		CreatedAt: time.Now(),
	}
	if err := repo.CreateRecord(context.Background(), job); err != nil {
		t.Fatalf("CreateRecord error: %v", err)
	}
	if len(exec.exec.args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != "gen_abc" {
		t.Fatalf("expected job id argument, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if !strings.Contains(exec.exec.query, "INSERT INTO jobs") {
		t.Fatalf("unexpected query: %s", exec.exec.query)
	}
}

func TestUpdateStatusTerminalGuard(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	msg := "render failed"
	if err := repo.UpdateStatus(context.Background(), "gen_abc", domain.JobStatusFailed, domain.JobStepFailed, &msg); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if !strings.Contains(exec.exec.query, "status NOT IN ('completed', 'failed', 'cancelled')") {
		t.Fatalf("update must not touch terminal rows: %s", exec.exec.query)
	}
	if len(exec.exec.args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(exec.exec.args))
	}
	if ptr, ok := exec.exec.args[3].(*string); !ok || *ptr != msg {
		t.Fatalf("expected error message argument, got %T %v", exec.exec.args[3], exec.exec.args[3])
	}
}

func TestUpdateStatusLeavesRetryCountAlone(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	if err := repo.UpdateStatus(context.Background(), "gen_abc", domain.JobStatusPending, domain.JobStepQueued, nil); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if strings.Contains(exec.exec.query, "retry_count") {
		t.Fatalf("status updates must not touch retry_count: %s", exec.exec.query)
	}
}

func TestRequeueRecordArgs(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	if err := repo.RequeueRecord(context.Background(), "gen_abc", 2); err != nil {
		t.Fatalf("RequeueRecord error: %v", err)
	}
	if !strings.Contains(exec.exec.query, "retry_count = $2") {
		t.Fatalf("requeue must set the explicit retry count: %s", exec.exec.query)
	}
	if !strings.Contains(exec.exec.query, "status NOT IN ('completed', 'failed', 'cancelled')") {
		t.Fatalf("requeue must not touch terminal rows: %s", exec.exec.query)
	}
	if len(exec.exec.args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(int); !ok || v != 2 {
		t.Fatalf("expected retry count argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestCompleteRecordArgs(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	info := domain.ArtifactInfo{
		Path:            "gen_abc.wav",
		SizeBytes:       128044,
		DurationSeconds: 2,
		SampleRate:      32000,
		Channels:        2,
		Format:          "wav",
	}
	if err := repo.CompleteRecord(context.Background(), "gen_abc", 3.5, info); err != nil {
		t.Fatalf("CompleteRecord error: %v", err)
	}
	if !strings.Contains(exec.exec.query, "status NOT IN ('completed', 'failed', 'cancelled')") {
		t.Fatalf("complete must not touch terminal rows: %s", exec.exec.query)
	}
	if len(exec.exec.args) != 8 {
		t.Fatalf("expected 8 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[2].(string); !ok || v != "gen_abc.wav" {
		t.Fatalf("expected artifact path argument, got %T %v", exec.exec.args[2], exec.exec.args[2])
	}
	if v, ok := exec.exec.args[5].(int); !ok || v != 32000 {
		t.Fatalf("expected sample rate argument, got %T %v", exec.exec.args[5], exec.exec.args[5])
	}
}

func TestGetRecordNotFound(t *testing.T) {
	repo := NewJobRepository(&stubExecutor{rowErr: pgx.ErrNoRows})
	if _, err := repo.GetRecord(context.Background(), "gen_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRecord error = %v, want ErrNotFound", err)
	}
}
