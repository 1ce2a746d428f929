package tiltmeter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Server exposes a running Monitor over HTTP.
type Server struct {
	monitor   *Monitor
	wsServer  *WebSocketServer
	recorder  *Recorder
	staticDir string
	mux       *http.ServeMux
	log       *logrus.Entry
}

type estimatorState struct {
	Enabled bool             `json:"enabled"`
	Config  *EstimatorConfig `json:"config,omitempty"`
	Last    *Reading         `json:"last,omitempty"`
}

// NewServer wires the HTTP handlers. recorder may be nil, in which case the
// history endpoints answer 404.
func NewServer(monitor *Monitor, ws *WebSocketServer, recorder *Recorder, staticDir string) *Server {
	s := &Server{
		monitor:   monitor,
		wsServer:  ws,
		recorder:  recorder,
		staticDir: staticDir,
		mux:       http.NewServeMux(),
		log:       logrus.WithField("component", "server"),
	}

	if staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	s.mux.Handle("/ws", ws)
	s.mux.HandleFunc("/serial_ports", s.handleListSerialPorts)
	s.mux.HandleFunc("/estimator", s.handleEstimator)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/recent", s.handleRecent)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("HTTP shutdown error")
		}
	}()

	s.log.Infof("Starting web server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleListSerialPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := SerialPorts()
	if err != nil {
		s.log.WithError(err).Error("Failed to list serial ports")
		http.Error(w, "Failed to list serial ports", http.StatusInternalServerError)
		return
	}
	if ports == nil {
		ports = []string{}
	}

	writeJSON(w, ports)
}

func (s *Server) handleEstimator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var state estimatorState
	if e := s.monitor.Estimator(); e != nil {
		cfg := e.Config()
		state.Enabled = true
		state.Config = &cfg
	}
	if last, ok := s.monitor.Last(); ok {
		state.Last = &last
	}

	writeJSON(w, state)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.NotFound(w, r)
		return
	}

	start, err := queryInt(r, "start", 0)
	if err != nil {
		http.Error(w, "Invalid start", http.StatusBadRequest)
		return
	}
	end, err := queryInt(r, "end", time.Now().UnixMicro())
	if err != nil {
		http.Error(w, "Invalid end", http.StatusBadRequest)
		return
	}
	if end < start {
		http.Error(w, "end before start", http.StatusBadRequest)
		return
	}

	data, err := s.recorder.GetHistoricalData(start, end)
	if err != nil {
		s.log.WithError(err).Error("Failed to read history")
		http.Error(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = []Reading{}
	}

	writeJSON(w, data)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.recorder.Recent())
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
