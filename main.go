package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouBoom/xuance-sub001/internal/capture"
	"github.com/zhouBoom/xuance-sub001/internal/config"
	"github.com/zhouBoom/xuance-sub001/internal/connpool"
	"github.com/zhouBoom/xuance-sub001/internal/crypto"
	"github.com/zhouBoom/xuance-sub001/internal/lifecycle"
	"github.com/zhouBoom/xuance-sub001/internal/logging"
	"github.com/zhouBoom/xuance-sub001/internal/notify"
	"github.com/zhouBoom/xuance-sub001/internal/router"
	"github.com/zhouBoom/xuance-sub001/internal/session"
	"github.com/zhouBoom/xuance-sub001/internal/store"
	"github.com/zhouBoom/xuance-sub001/internal/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	logging.Init(cfg.LogPath)

	platform, err := config.LoadPlatform(cfg.PlatformProfile)
	if err != nil {
		log.Fatalf("Platform profile: %v", err)
	}
	log.Printf("Platform: %s (%s)", platform.Name, platform.HomeURL)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Store init: %v", err)
	}
	defer st.Close()

	cipher := crypto.NewCipher(st)
	bridge := notify.NewBridge(notify.LogSink{})
	pool := connpool.NewPool(connpool.WebsocketDialer(cfg.ControlEndpoint))
	watchdog := connpool.NewWatchdog(pool, bridge, cfg.EscalationWindow, cfg.ProbeAddr)
	scheduler := capture.NewScheduler(cfg.CaptureInterval)

	// The embedded browser engine is injected by the host application;
	// standalone runs use the in-memory stand-in.
	provider := session.NewNullProvider()

	registry := lifecycle.New(lifecycle.Deps{
		Provider:          provider,
		Store:             st,
		Cipher:            cipher,
		Pool:              pool,
		Bridge:            bridge,
		Capture:           scheduler,
		Platform:          platform,
		ObservationWindow: cfg.LoginObservationWindow,
	})
	ingress := ui.NewIngress(registry, bridge, provider)

	rt := router.New(st, registry, pool, bridge)
	rt.Handle("work.start", func(ctx context.Context, accountID string, env router.Envelope) error {
		return registry.Dispatch(ctx, accountID, lifecycle.StateWorking, nil)
	})
	rt.Handle("work.finish", func(ctx context.Context, accountID string, env router.Envelope) error {
		return registry.Dispatch(ctx, accountID, lifecycle.StateIdle, nil)
	})
	rt.Handle("task.publish", func(ctx context.Context, accountID string, env router.Envelope) error {
		// Execution happens inside the page automation; surface it.
		bridge.Send(notify.TargetMain, notify.ChannelTaskUpdate, map[string]interface{}{
			"account_id": accountID,
			"command":    env.Command,
			"payload":    env.Payload,
		})
		return nil
	})
	rt.Bind()

	ctx := context.Background()
	rt.ReplayPending(ctx)

	bridge.Send(notify.TargetMain, notify.ChannelIsSandbox, cfg.Sandbox)

	// Re-initialize persisted accounts: each gets its machine back and a
	// fresh login check. The list entries queue on the bridge until the
	// shell attaches.
	accounts, err := st.ListAccounts()
	if err != nil {
		log.Printf("WARNING: list accounts: %v", err)
	}
	for _, acct := range accounts {
		bridge.Send(notify.TargetMain, notify.ChannelAddAccountItem, acct)
		registry.CreateStateMachine(acct.ID)
		if err := registry.Dispatch(ctx, acct.ID, lifecycle.StateInit, nil); err != nil {
			log.Printf("WARNING: init %s: %v", acct.ID, err)
		}
	}
	log.Printf("Restored %d account(s)", len(accounts))

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/accounts", func(w http.ResponseWriter, _ *http.Request) {
			accounts, err := st.ListAccounts()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			type entry struct {
				store.Account
				State string `json:"state"`
			}
			out := make([]entry, 0, len(accounts))
			for _, a := range accounts {
				e := entry{Account: a}
				if s, ok := registry.CurrentState(a.ID); ok {
					e.State = s.String()
				}
				out = append(out, e)
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Get("/accounts/{id}/state", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			state, ok := registry.CurrentState(id)
			if !ok {
				http.Error(w, "Account not tracked", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"account_id": id,
				"state":      state.String(),
				"history":    registry.History(id),
			})
		})

		r.Get("/accounts/{id}/events", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			acct, err := st.GetAccount(id)
			if err != nil {
				http.Error(w, "Account not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"account_id":  id,
				"conn_state":  pool.ConnectionState(acct.RedID),
				"transitions": pool.StateHistory(acct.RedID),
				"events":      pool.EventHistory(acct.RedID),
			})
		})

		r.Delete("/accounts/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			if _, err := st.GetAccount(id); err != nil {
				http.Error(w, "Account not found", http.StatusNotFound)
				return
			}
			// Tear down first so the connection, capture job and view
			// go before the profile row.
			if err := registry.Dispatch(req.Context(), id, lifecycle.StateNotLogined, nil); err != nil {
				log.Printf("WARNING: teardown %s: %v", id, err)
			}
			if err := st.DeleteAccount(id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		})

		r.Post("/ui/events", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Event     string                 `json:"event"`
				AccountID string                 `json:"account_id"`
				Payload   map[string]interface{} `json:"payload"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, "Invalid body", http.StatusBadRequest)
				return
			}
			if err := ingress.Handle(req.Context(), body.Event, body.AccountID, body.Payload); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/ui/stream", func(w http.ResponseWriter, req *http.Request) {
			serveUIStream(w, req, bridge, ingress)
		})

		r.Get("/logs", func(w http.ResponseWriter, req *http.Request) {
			lines := 200
			if q := req.URL.Query().Get("lines"); q != "" {
				if n, err := strconv.Atoi(q); err == nil && n > 0 {
					lines = n
				}
			}
			tail, err := logging.ReadTail(lines)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"logs": tail})
		})

		r.Delete("/logs", func(w http.ResponseWriter, _ *http.Request) {
			if err := logging.Clear(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		})
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	scheduler.Stop()
	watchdog.Stop()
	pool.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// serveUIStream is the shell's notification websocket. Attaching flips the
// bridge to ready and flushes queued notifications; inbound frames are UI
// events fed to the ingress. Detach does not revert readiness.
func serveUIStream(w http.ResponseWriter, req *http.Request, bridge *notify.Bridge, ingress *ui.Ingress) {
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ui] accept stream: %v", err)
		return
	}
	defer conn.CloseNow()

	bridge.Attach(notify.NewWSSink(conn))
	defer bridge.Detach()
	log.Printf("[ui] shell attached")

	ctx := req.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Printf("[ui] shell detached: %v", err)
			return
		}
		var body struct {
			Event     string                 `json:"event"`
			AccountID string                 `json:"account_id"`
			Payload   map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			log.Printf("[ui] malformed event, dropping: %v", err)
			continue
		}
		if err := ingress.Handle(ctx, body.Event, body.AccountID, body.Payload); err != nil {
			log.Printf("[ui] event %s: %v", logging.Sanitize(body.Event), err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json response: %v", err)
	}
}
