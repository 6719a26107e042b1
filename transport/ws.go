package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"news-lab/contract"
)

// WSConn wraps a WebSocket connection. The transport already delimits
// messages, so one message is one frame and no extra framing is needed.
type WSConn struct {
	conn *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (w *WSConn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *WSConn) WriteFrame(ctx context.Context, frame []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, frame)
}

func (w *WSConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "server shutdown")
}

// WebServer exposes the WebSocket endpoint and a health probe. It is a
// supervised worker: Run blocks until the context is cancelled, then
// shuts the HTTP server down within the grace period.
type WebServer struct {
	log       *slog.Logger
	addr      string
	handler   contract.ConnHandler
	connCount func() int
	grace     time.Duration
}

func NewWebServer(log *slog.Logger, addr string, handler contract.ConnHandler,
	connCount func() int, grace time.Duration) *WebServer {
	return &WebServer{
		log:       log,
		addr:      addr,
		handler:   handler,
		connCount: connCount,
		grace:     grace,
	}
}

func (s *WebServer) Run(ctx context.Context) error {
	router := chi.NewRouter()
	router.Get("/ws", s.wsHandler(ctx))
	router.Get("/health", s.healthHandler())

	srv := &http.Server{Addr: s.addr, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("WebSocket endpoint listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// wsHandler upgrades the request and hands the connection to the shared
// lifecycle handler. It blocks until the receive loop ends, which is what
// keeps the WebSocket open.
func (s *WebServer) wsHandler(serverCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			s.log.Warn("WebSocket accept failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.handler.HandleConn(serverCtx, NewWSConn(conn))
	}
}

func (s *WebServer) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := map[string]int{
			"goroutines":  runtime.NumGoroutine(),
			"connections": s.connCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}
}
