package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reachby3cs/engage/internal/adapter/repo/postgres"
)

type fakeTx struct {
	commitErr error
	execErr   error
	queries   []string
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.queries = append(t.queries, sql)
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	return pgconn.NewCommandTag("DELETE 2"), nil
}
func (t *fakeTx) Commit(_ context.Context) error   { return t.commitErr }
func (t *fakeTx) Rollback(_ context.Context) error { return nil }

type fakeBeginner struct {
	beginErr error
	tx       *fakeTx
}

func (b *fakeBeginner) Begin(_ context.Context) (postgres.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestCleanupService_CleanupOldData_OK(t *testing.T) {
	tx := &fakeTx{}
	svc := postgres.NewCleanupService(&fakeBeginner{tx: tx}, 30)
	if err := svc.CleanupOldData(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// Derived tables are purged before posts.
	if len(tx.queries) != 5 {
		t.Fatalf("expected 5 deletes, got %d", len(tx.queries))
	}
	last := tx.queries[len(tx.queries)-1]
	if last != `DELETE FROM posts WHERE crawled_at < $1` {
		t.Fatalf("posts must be deleted last, got %q", last)
	}
}

func TestCleanupService_BeginError(t *testing.T) {
	svc := postgres.NewCleanupService(&fakeBeginner{beginErr: errors.New("begin")}, 1)
	if err := svc.CleanupOldData(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCleanupService_ExecError(t *testing.T) {
	svc := postgres.NewCleanupService(&fakeBeginner{tx: &fakeTx{execErr: errors.New("exec")}}, 1)
	if err := svc.CleanupOldData(context.Background()); err == nil {
		t.Fatalf("expected exec error")
	}
}

func TestCleanupService_CommitError(t *testing.T) {
	svc := postgres.NewCleanupService(&fakeBeginner{tx: &fakeTx{commitErr: errors.New("commit")}}, 1)
	if err := svc.CleanupOldData(context.Background()); err == nil {
		t.Fatalf("expected commit error")
	}
}

func TestCleanupService_DefaultRetention(t *testing.T) {
	svc := postgres.NewCleanupService(&fakeBeginner{tx: &fakeTx{}}, 0)
	if svc.RetentionDays != 90 {
		t.Fatalf("expected default retention 90, got %d", svc.RetentionDays)
	}
}

func TestCleanupService_RunPeriodic_ImmediateCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := postgres.NewCleanupService(&fakeBeginner{tx: &fakeTx{}}, 1)
	go svc.RunPeriodic(ctx, 0)
}
