package rendezvous

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BioHazard786/doorcall/internal/metrics"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browsers join from whatever origin serves the call page.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := newClient(hub, conn)
		if !hub.join(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// Handler returns the server routes: /ws, /health and, when m is set, /metrics.
func Handler(hub *Hub, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Rendezvous server is healthy."))
	})
	mux.HandleFunc("/ws", ServeWs(hub))
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}

// ListenAndServe runs the hub and the HTTP server on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, m *metrics.Metrics) error {
	hub := NewHub(m, nil)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(hub, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	hub.log.Info("starting rendezvous server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
