// Package command exposes the walking controller over HTTP and a
// websocket status stream, so an operator console can drive the gait and
// watch the state machine live.
package command

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"walking-go/pkg/walking"
)

// statusInterval paces the websocket status broadcast.
const statusInterval = 100 * time.Millisecond

// Controller is the command-facing slice of the orchestrator.
type Controller interface {
	Prepare() error
	Start() error
	Stop() error
	Pause() error
	SetGoal(x, y float64) error
	Status() walking.Status
}

// Server serves the command endpoints and the websocket status stream.
type Server struct {
	controller Controller
	addr       string
	log        *logrus.Entry

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientMu sync.Mutex
	clients  map[*websocket.Conn]struct{}

	stop chan struct{}
}

// New creates the server. addr is the HTTP listen address.
func New(controller Controller, addr string, log *logrus.Entry) *Server {
	return &Server{
		controller: controller,
		addr:       addr,
		log:        log,
		clients:    make(map[*websocket.Conn]struct{}),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the HTTP server. Blocks until Stop or a listen error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/walker/prepare", s.command(s.controller.Prepare))
	mux.HandleFunc("/walker/start", s.command(s.controller.Start))
	mux.HandleFunc("/walker/stop", s.command(s.controller.Stop))
	mux.HandleFunc("/walker/pause", s.command(s.controller.Pause))
	mux.HandleFunc("/walker/goal", s.handleGoal)
	mux.HandleFunc("/walker/status", s.handleStatus)
	mux.HandleFunc("/websocket", s.handleWebsocket)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	s.log.WithField("addr", s.addr).Info("command server listening")

	go s.broadcastLoop()
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down and closes every websocket client.
func (s *Server) Stop() error {
	close(s.stop)

	s.clientMu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.clientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

type commandResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type statusPayload struct {
	State    string     `json:"state"`
	Time     float64    `json:"time"`
	DCMError [2]float64 `json:"dcm_error"`
}

func toPayload(st walking.Status) statusPayload {
	return statusPayload{
		State:    st.State.String(),
		Time:     st.Time,
		DCMError: [2]float64{st.DCMError.X(), st.DCMError.Y()},
	}
}

func (s *Server) command(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		s.writeResult(w, fn())
	}
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var goal struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		http.Error(w, "malformed goal", http.StatusBadRequest)
		return
	}
	s.writeResult(w, s.controller.SetGoal(goal.X, goal.Y))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPayload(s.controller.Status()))
}

func (s *Server) writeResult(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	res := commandResult{OK: err == nil}
	if err != nil {
		res.Error = err.Error()
		w.WriteHeader(http.StatusConflict)
	}
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.clientMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientMu.Unlock()

	// Read loop only drains control frames; commands go over HTTP.
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.clientMu.Lock()
	delete(s.clients, conn)
	s.clientMu.Unlock()
	conn.Close()
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		payload := toPayload(s.controller.Status())

		s.clientMu.Lock()
		for conn := range s.clients {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteJSON(payload); err != nil {
				delete(s.clients, conn)
				conn.Close()
			}
		}
		s.clientMu.Unlock()
	}
}
