package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/wavesync/internal/render"
)

const (
	sendBuffer   = 32
	writeTimeout = 2 * time.Second
)

// upgrader accepts same-origin and local network connections.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
			return true
		}
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
		slog.Warn("Rejected WebSocket connection", "origin", origin)
		return false
	},
}

// TrackInfo is shown by the web page next to the overlay.
type TrackInfo struct {
	Title      string `json:"title"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

// Message is the JSON envelope sent to browser clients.
type Message struct {
	Type   string           `json:"type"`
	Track  *TrackInfo       `json:"track,omitempty"`
	Width  int              `json:"width,omitempty"`
	Height int              `json:"height,omitempty"`
	Rect   *image.Rectangle `json:"rect,omitempty"`
	PNG    string           `json:"png,omitempty"` // base64 PNG of Rect
	Frames int64            `json:"frames,omitempty"`
}

// Command is a JSON message sent by a browser client.
type Command struct {
	Type string `json:"type"` // "close"
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Track   TrackInfo `json:"track"`
	Frames  int64     `json:"frames"`
	Clients int       `json:"clients"`
	Closed  bool      `json:"closed"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server is a render.Surface that mirrors frames to web browsers. The
// overlay is served once as a PNG; every Present broadcasts the changed
// region as a PNG patch over /ws. A browser "close" command closes Done.
type Server struct {
	overlayPNG []byte
	size       image.Point
	track      TrackInfo

	listener net.Listener
	http     *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
	frames  atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// New renders the overlay to PNG and starts listening on addr.
func New(addr string, overlay *render.Overlay, track TrackInfo) (*Server, error) {
	var buf bytes.Buffer
	if err := overlay.WritePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		overlayPNG: buf.Bytes(),
		size:       overlay.Background().Bounds().Size(),
		track:      track,
		listener:   ln,
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
	s.http = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("Starting wavesync web surface",
		"addr", ln.Addr().String(),
		"local_url", fmt.Sprintf("http://%s:%d", getLocalIP(), ln.Addr().(*net.TCPAddr).Port))
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/overlay.png", s.handleOverlay)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Present encodes the dirty region and queues it for every client. Slow
// clients drop patches instead of delaying the caller.
func (s *Server) Present(img *image.RGBA, dirty image.Rectangle) error {
	dirty = dirty.Intersect(img.Bounds())
	if dirty.Empty() {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.SubImage(dirty)); err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}
	n := s.frames.Add(1)
	payload, err := json.Marshal(Message{
		Type:   "patch",
		Rect:   &dirty,
		PNG:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		Frames: n,
	})
	if err != nil {
		return err
	}
	s.broadcast(payload)
	return nil
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			slog.Debug("Dropping patch for slow client", "remote", c.conn.RemoteAddr().String())
		}
	}
}

// Done is closed when a browser asks to close the display.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) cancel() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Close disconnects all clients and stops the HTTP server.
func (s *Server) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// handleWebSocket sends the hello message, then forwards patches until the
// client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	track := s.track
	if err := conn.WriteJSON(Message{Type: "hello", Track: &track, Width: s.size.X, Height: s.size.Y}); err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.register(c)
	slog.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())

	go func() {
		defer s.unregister(c)
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			switch cmd.Type {
			case "close":
				slog.Info("Display closed from browser", "remote", conn.RemoteAddr().String())
				s.cancel()
			default:
				slog.Debug("Ignoring unknown command", "type", cmd.Type)
			}
		}
	}()

	for payload := range c.send {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.unregister(c)
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// handleIndex serves the viewer page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(s.overlayPNG)
}

// handleStatus returns the surface status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	closed := false
	select {
	case <-s.done:
		closed = true
	default:
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Track:   s.track,
		Frames:  s.frames.Load(),
		Clients: s.clientCount(),
		Closed:  closed,
	})
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
