package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/vr_digitizer/internal/config"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/mirror"
)

const wsWriteTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, any origin
	},
}

// StatusResponse is the /api/status body.
type StatusResponse struct {
	Status mirror.Status `json:"status"`
	Poses  []mirror.Pose `json:"poses"`
}

// RunWeb serves the mirrored digitizer state over HTTP until ctx ends.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	lg := log.Component("web")
	store := NewStatusStore()

	client, err := subscribeObserver(cfg, cfg.MQTTClientID+"-web", store)
	if err != nil {
		return err
	}
	defer client.Close()
	lg.Info("connected to MQTT broker", "broker", cfg.MQTTBroker)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewWebHandler(store, "web"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("web server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// NewWebHandler routes the status API, the websocket feed and the static
// files under staticDir (skipped when empty).
func NewWebHandler(store *StatusStore, staticDir string) http.Handler {
	lg := log.Component("web")
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st, ok := store.Status()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(StatusResponse{Status: st, Poses: store.Poses()}); err != nil {
			lg.Warn("json encode error", "error", err)
		}
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveStatusWS(w, r, store, lg)
	})
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// serveStatusWS pushes every status update to the client until either side
// goes away.
func serveStatusWS(w http.ResponseWriter, r *http.Request, store *StatusStore, lg *slog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lg.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	updates, stop := store.Watch()
	defer stop()

	// Reader goroutine only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(st mirror.Status) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(st); err != nil {
			lg.Debug("websocket write error", "error", err)
			return false
		}
		return true
	}

	if st, ok := store.Status(); ok && !send(st) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case st := <-updates:
			if !send(st) {
				return
			}
		}
	}
}
