package store

import (
	"context"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-a", RoleUser, "Can I claim my laptop?"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := s.Append(ctx, "sess-a", RoleAssistant, "Yes, if used for work."); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := s.Recent(ctx, "sess-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Can I claim my laptop?" {
		t.Errorf("msg[0]: got %s/%s", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("msg[1]: want assistant, got %s", msgs[1].Role)
	}
}

func Test_Store_AppendRequiresSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.Append(context.Background(), "", RoleUser, "x"); err == nil {
		t.Error("want error for empty session id")
	}
	if err := s.AppendTurn(context.Background(), "", "q", "a"); err == nil {
		t.Error("want error for empty session id")
	}
}

func Test_Store_AppendTurn(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendTurn(ctx, "sess-t", "What is GST?", "A 10% tax on most goods."); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	msgs, err := s.Recent(ctx, "sess-t", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("unexpected turn: %+v", msgs)
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := s.Append(ctx, "sess-b", role, "msg"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "sess-b", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("want 4 messages, got %d", len(msgs))
	}
}

func Test_Store_SessionIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-x", RoleUser, "from x"); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, "sess-y", RoleUser, "from y"); err != nil {
		t.Fatalf("append y: %v", err)
	}

	msgsX, err := s.Recent(ctx, "sess-x", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	msgsY, err := s.Recent(ctx, "sess-y", 10)
	if err != nil {
		t.Fatalf("recent y: %v", err)
	}

	if len(msgsX) != 1 || msgsX[0].Content != "from x" {
		t.Errorf("session x isolation failed: got %v", msgsX)
	}
	if len(msgsY) != 1 || msgsY[0].Content != "from y" {
		t.Errorf("session y isolation failed: got %v", msgsY)
	}
}

func Test_Store_EmptySessionReturnsEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	msgs, err := s.Recent(context.Background(), "sess-empty", 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("want empty non-nil slice, got %v", msgs)
	}
}

func Test_Store_OldestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		if err := s.Append(ctx, "sess-order", RoleUser, c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "sess-order", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	for i, want := range contents {
		if msgs[i].Content != want {
			t.Errorf("msg[%d]: want %q, got %q", i, want, msgs[i].Content)
		}
	}
}

func Test_Store_Sessions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return clock }
	if err := s.AppendTurn(ctx, "older", "q", "a"); err != nil {
		t.Fatalf("append older: %v", err)
	}
	clock = clock.Add(time.Hour)
	if err := s.Append(ctx, "newer", RoleUser, "q"); err != nil {
		t.Fatalf("append newer: %v", err)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("want 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "newer" || sessions[0].MessageCount != 1 {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if sessions[1].ID != "older" || sessions[1].MessageCount != 2 {
		t.Errorf("sessions[1] = %+v", sessions[1])
	}
	if !sessions[0].LastActivity.Equal(clock) {
		t.Errorf("LastActivity = %v, want %v", sessions[0].LastActivity, clock)
	}
}
