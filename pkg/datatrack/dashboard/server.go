// Package dashboard serves the live pipeline dashboard: a websocket feed of
// measurement events, the most recent events and alerts over a small JSON
// API, and the Prometheus exposition of the metrics registry.
package dashboard

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

//go:embed index.html
var indexHTML []byte

var (
	// ErrStopped is returned by Emit after Stop.
	ErrStopped = errors.New("dashboard: server stopped")
	// ErrDropped is returned by Emit when the event queue is full.
	ErrDropped = errors.New("dashboard: event dropped, queue full")
)

// MessageType is the envelope type of every websocket message.
const MessageType = "metric_update"

const (
	defaultQueueSize  = 256
	defaultRecentSize = 50
	defaultMaxAlerts  = 500
	defaultMaxClients = 100
	clientBufferSize  = 64
	pingInterval      = 30 * time.Second
	pongWait          = 60 * time.Second
	writeWait         = 10 * time.Second
	shutdownGrace     = 5 * time.Second
)

// Event is one dashboard event.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Message is the websocket envelope.
type Message struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server is the dashboard server. It implements the Emit side of the
// measurement publish interface.
type Server struct {
	addr       string
	logger     *slog.Logger
	registry   *metrics.Registry
	maxClients int
	origins    map[string]bool

	server   *http.Server
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*client]struct{}

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.RWMutex
	recent []Event
	next   int
	count  int
	latest map[string]Event
	alerts *alertStore
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry mounts reg at /metrics.
func WithRegistry(reg *metrics.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithMaxClients caps concurrent websocket connections.
func WithMaxClients(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

// WithAllowedOrigins adds browser origins accepted for websocket upgrades
// in addition to localhost on the listening port.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.origins[o] = true
		}
	}
}

// NewServer returns a server that will listen on addr. The broadcast loop
// starts immediately; call Stop to release it.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		logger:     slog.Default(),
		maxClients: defaultMaxClients,
		origins:    make(map[string]bool),
		clients:    make(map[*client]struct{}),
		events:     make(chan Event, defaultQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		recent:     make([]Event, defaultRecentSize),
		latest:     make(map[string]Event),
		alerts:     newAlertStore(defaultMaxAlerts),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, port, err := net.SplitHostPort(addr); err == nil {
		s.origins["http://localhost:"+port] = true
		s.origins["http://127.0.0.1:"+port] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	go s.broadcast()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the HTTP routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/metrics", s.handleLatest)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/alerts/acknowledge", s.handleAlertAction(AlertStatusAcknowledged))
	mux.HandleFunc("/api/alerts/resolve", s.handleAlertAction(AlertStatusResolved))
	if s.registry != nil {
		mux.Handle("/metrics", s.registry.Handler())
	}
	return mux
}

// Start serves the dashboard until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting dashboard", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard listen on %s: %w", s.addr, err)
	}
	return nil
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		_ = s.Stop()
		return err
	}
}

// Stop closes every websocket client, stops the broadcast loop and shuts
// down the HTTP listener if one was started. It is safe to call twice.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			err = s.server.Shutdown(ctx)
		}
	})
	return err
}

// Emit queues an event for every connected client. It never blocks: when
// the queue is full the event is dropped and ErrDropped returned.
func (s *Server) Emit(eventType string, payload map[string]any) error {
	select {
	case <-s.stop:
		return ErrStopped
	default:
	}

	ev := Event{Type: eventType, Data: payload, Timestamp: time.Now()}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	if eventType == "alert" {
		s.alerts.add(ev)
	}

	select {
	case s.events <- ev:
		return nil
	default:
		return ErrDropped
	}
}

// Recent returns the buffered events, oldest first.
func (s *Server) Recent() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, s.count)
	size := len(s.recent)
	if s.count == size {
		for i := 0; i < size; i++ {
			out[i] = s.recent[(s.next+i)%size]
		}
	} else {
		copy(out, s.recent[:s.count])
	}
	return out
}

// Alerts returns the stored alerts, newest first.
func (s *Server) Alerts(status AlertStatus, severity AlertSeverity) []Alert {
	return s.alerts.list(status, severity)
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.origins[origin]
}

func (s *Server) store(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[s.next] = ev
	s.next = (s.next + 1) % len(s.recent)
	if s.count < len(s.recent) {
		s.count++
	}
	s.latest[ev.Type] = ev
}

func (s *Server) broadcast() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			s.store(ev)
			s.broadcastMessage(Message{Type: MessageType, Data: ev})
		case <-s.stop:
			s.closeClients()
			return
		}
	}
}

// broadcastMessage hands the encoded message to every client without
// waiting; a client whose buffer is full misses the message.
func (s *Server) broadcastMessage(msg Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if len(s.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode dashboard message", "type", msg.Data.Type, "error", err)
		return
	}
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.logger.Debug("dropping message for slow dashboard client", "remote", c.conn.RemoteAddr().String())
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
}

func (s *Server) register(c *client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	select {
	case <-s.stop:
		return false
	default:
	}
	if len(s.clients) >= s.maxClients {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) unregister(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[c]; ok {
		close(c.send)
		delete(s.clients, c)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ClientCount() >= s.maxClients {
		http.Error(w, "Maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, clientBufferSize)}
	if !s.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "maximum clients reached"),
			time.Now().Add(writeWait))
		return
	}
	defer s.unregister(c)
	s.logger.Info("dashboard client connected", "remote", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reads only detect disconnects; clients never send data.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.Recent()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < len(events) {
			events = events[len(events)-n:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": events})
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest := make(map[string]Event, len(s.latest))
	for k, v := range s.latest {
		latest[k] = v
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": latest})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list := s.alerts.list(AlertStatus(q.Get("status")), AlertSeverity(q.Get("severity")))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": list})
}

type alertActionRequest struct {
	AlertID string `json:"alert_id"`
	User    string `json:"user,omitempty"`
}

func (s *Server) handleAlertAction(status AlertStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req alertActionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON request", http.StatusBadRequest)
			return
		}
		if req.AlertID == "" {
			http.Error(w, "Alert ID is required", http.StatusBadRequest)
			return
		}
		if len(req.User) > 100 {
			http.Error(w, "User name exceeds maximum length of 100 characters", http.StatusBadRequest)
			return
		}
		alert, ok := s.alerts.setStatus(req.AlertID, status, req.User)
		if !ok {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": alert})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
