package router

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zhouBoom/xuance-sub001/internal/connpool"
	"github.com/zhouBoom/xuance-sub001/internal/lifecycle"
	"github.com/zhouBoom/xuance-sub001/internal/notify"
	"github.com/zhouBoom/xuance-sub001/internal/store"
)

type recordSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *recordSink) Deliver(n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordSink) onChannel(channel string) []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Notification
	for _, n := range s.sent {
		if n.Channel == channel {
			out = append(out, n)
		}
	}
	return out
}

type testEnv struct {
	router   *Router
	store    *store.Store
	registry *lifecycle.Registry
	pool     *connpool.Pool
	sink     *recordSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.SaveAccount(&store.Account{ID: "acct-1", RedID: "red-1", Nickname: "alice"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	registry := lifecycle.NewRegistry(nil)
	registry.CreateStateMachine("acct-1")

	pool := connpool.NewPool(func(ctx context.Context, id string) (connpool.Conn, error) {
		return nil, errors.New("no upstream in tests")
	})
	t.Cleanup(pool.CloseAll)

	sink := &recordSink{}
	bridge := notify.NewBridge(sink)
	bridge.Ready()

	return &testEnv{
		router:   New(st, registry, pool, bridge),
		store:    st,
		registry: registry,
		pool:     pool,
		sink:     sink,
	}
}

func TestMalformedMessageIsDropped(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.router.Route(ctx, "red-1", []byte(`{"command":`))
	e.router.Route(ctx, "red-1", []byte(``))
	e.router.Route(ctx, "red-1", nil)

	tasks, err := e.store.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("malformed messages produced %d tasks", len(tasks))
	}
	if e.pool.IsRevoked("red-1") {
		t.Error("malformed messages must not touch the connection")
	}
}

func TestTaggedMessageIsPersistedAndRouted(t *testing.T) {
	e := newTestEnv(t)

	var mu sync.Mutex
	var calls []string
	e.router.Handle("note.publish", func(ctx context.Context, accountID string, env Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, accountID)
		return nil
	})

	raw := []byte(`{"command":"note.publish","red_id":"red-1","payload":{"title":"hi"}}`)
	e.router.Route(context.Background(), "red-1", raw)

	mu.Lock()
	if len(calls) != 1 || calls[0] != "acct-1" {
		t.Errorf("handler calls = %v, want [acct-1]", calls)
	}
	mu.Unlock()

	tasks, err := e.store.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(tasks))
	}
	if tasks[0].AccountID != "acct-1" || tasks[0].Command != "note.publish" {
		t.Errorf("task = %+v", tasks[0])
	}
	if tasks[0].TaskID == "" {
		t.Error("task id should be assigned on ingestion")
	}
}

func TestPayloadUserIDResolvesAccount(t *testing.T) {
	e := newTestEnv(t)

	var got string
	e.router.Handle("work.start", func(ctx context.Context, accountID string, env Envelope) error {
		got = accountID
		return nil
	})

	raw := []byte(`{"command":"work.start","payload":{"user_id":"acct-1"}}`)
	e.router.Route(context.Background(), "red-1", raw)

	if got != "acct-1" {
		t.Errorf("resolved account = %q, want acct-1", got)
	}
}

func TestUntaggedMessageFallsBackToConnectionWithoutTask(t *testing.T) {
	e := newTestEnv(t)

	var got string
	e.router.Handle("ping", func(ctx context.Context, accountID string, env Envelope) error {
		got = accountID
		return nil
	})

	e.router.Route(context.Background(), "red-1", []byte(`{"command":"ping"}`))

	if got != "acct-1" {
		t.Errorf("resolved account = %q, want acct-1 via connection id", got)
	}
	tasks, err := e.store.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("untagged message produced %d tasks, want 0", len(tasks))
	}
}

func TestUnknownCommandStillIngestsTask(t *testing.T) {
	e := newTestEnv(t)

	e.router.Route(context.Background(), "red-1",
		[]byte(`{"command":"future.thing","red_id":"red-1"}`))

	tasks, err := e.store.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Errorf("pending tasks = %d, want 1 (persisted before routing)", len(tasks))
	}
}

func TestLogoutRevokesAndGoesOffline(t *testing.T) {
	e := newTestEnv(t)

	e.router.Route(context.Background(), "red-1", []byte(`{"command":"logout"}`))

	if !e.pool.IsRevoked("red-1") {
		t.Error("logout must revoke the connection")
	}
	if st, ok := e.registry.CurrentState("acct-1"); !ok || st != lifecycle.StateNotLogined {
		t.Errorf("state = %q, %v; want not_logined", st, ok)
	}

	dialogs := e.sink.onChannel(notify.ChannelBlockingDialog)
	if len(dialogs) != 1 {
		t.Fatalf("dialogs = %d, want 1", len(dialogs))
	}
	dlg, ok := dialogs[0].Data.(notify.Dialog)
	if !ok {
		t.Fatalf("dialog payload type %T", dialogs[0].Data)
	}
	if dlg.Dismissible {
		t.Error("revocation dialog must not be dismissible")
	}
	if len(dlg.Actions) != 1 || dlg.Actions[0] != notify.ActionRestart {
		t.Errorf("dialog actions = %v, want [restart]", dlg.Actions)
	}
}

func TestDeviceKickedPenetrateRevokes(t *testing.T) {
	e := newTestEnv(t)

	e.router.Route(context.Background(), "red-1",
		[]byte(`{"penetrate":"conn.device.kicked"}`))

	if !e.pool.IsRevoked("red-1") {
		t.Error("device-kicked penetrate must revoke the connection")
	}
}

func TestRevokeForUnknownConnectionIsSafe(t *testing.T) {
	e := newTestEnv(t)

	e.router.Route(context.Background(), "red-unknown", []byte(`{"command":"logout"}`))

	if !e.pool.IsRevoked("red-unknown") {
		t.Error("revocation must stick even for an unmapped connection")
	}
	// No account to move; nothing else should blow up.
	if st, ok := e.registry.CurrentState("acct-1"); ok && st == lifecycle.StateNotLogined {
		t.Error("unrelated account must not change state")
	}
}

func TestPanickingHandlerDoesNotEscape(t *testing.T) {
	e := newTestEnv(t)
	e.router.Handle("boom", func(ctx context.Context, accountID string, env Envelope) error {
		panic("handler bug")
	})

	// Must not panic the caller (in production: the pool's read goroutine).
	e.router.Route(context.Background(), "red-1", []byte(`{"command":"boom"}`))
}

func TestReplayPendingCompletesTasks(t *testing.T) {
	e := newTestEnv(t)

	for _, id := range []string{"t-1", "t-2"} {
		err := e.store.EnqueueTask(&store.Task{
			TaskID:    id,
			AccountID: "acct-1",
			Command:   "note.publish",
			Payload:   `{"title":"replayed"}`,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	// A task with no registered handler stays pending.
	if err := e.store.EnqueueTask(&store.Task{
		TaskID: "t-3", AccountID: "acct-1", Command: "unhandled",
	}); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var replayed []string
	e.router.Handle("note.publish", func(ctx context.Context, accountID string, env Envelope) error {
		var p struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		replayed = append(replayed, accountID+"/"+p.Title)
		return nil
	})

	e.router.ReplayPending(context.Background())

	mu.Lock()
	if len(replayed) != 2 {
		t.Errorf("replayed = %v, want 2 entries", replayed)
	}
	mu.Unlock()

	tasks, err := e.store.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != "t-3" {
		t.Errorf("pending after replay = %+v, want only t-3", tasks)
	}
}

func TestReplayKeepsFailedTaskPending(t *testing.T) {
	e := newTestEnv(t)

	if err := e.store.EnqueueTask(&store.Task{
		TaskID: "t-1", AccountID: "acct-1", Command: "note.publish",
	}); err != nil {
		t.Fatal(err)
	}
	e.router.Handle("note.publish", func(ctx context.Context, accountID string, env Envelope) error {
		return errors.New("upstream unavailable")
	})

	e.router.ReplayPending(context.Background())

	tasks, err := e.store.PendingTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Errorf("failed task should stay pending, got %d pending", len(tasks))
	}
}
