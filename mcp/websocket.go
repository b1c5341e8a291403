package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebsocketHandler serves one JSON-RPC message per text frame. Messages on
// a connection are handled in order; connections run concurrently and meet
// at the engine lock.
func (s *Server) WebsocketHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed: ", err)
			return
		}
		defer c.Close()

		s.log.Infoln("websocket client connected from", r.RemoteAddr)

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Infoln("websocket client", r.RemoteAddr, "disconnected")
				} else {
					s.log.Warn("websocket read error: ", err)
				}
				return
			}

			resp := s.HandleMessage(ctx, message)
			if resp == nil {
				continue
			}
			if err := c.WriteJSON(json.RawMessage(resp)); err != nil {
				s.log.Warn("websocket write error: ", err)
				return
			}
		}
	})
}

// ServeWebsocket listens on addr until ctx is done.
func (s *Server) ServeWebsocket(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.WebsocketHandler(ctx))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infoln("serving websocket on", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
