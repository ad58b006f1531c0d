// Package api serves the robot's HTTP surface: live pose, map renderings
// and a command route feeding the console mailbox.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/gridrunner/internal/console"
	"github.com/banshee-data/gridrunner/internal/monitoring"
	"github.com/banshee-data/gridrunner/internal/nav"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/viz"
	"tailscale.com/tsweb"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// CommandSource is the tag given to commands posted over HTTP.
const CommandSource = "http"

type Server struct {
	board *nav.StatusBoard
	mail  *console.Mailbox
}

func NewServer(board *nav.StatusBoard, mail *console.Mailbox) *Server {
	return &Server{board: board, mail: mail}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pose", s.showPose)
	mux.HandleFunc("/api/map.png", s.mapPNG)
	mux.HandleFunc("/api/map.html", s.mapHTML)
	mux.HandleFunc("/api/command", s.postCommand)
	mux.HandleFunc("/api/serial/devices", s.handleSerialDevices)
	return mux
}

// AttachAdminRoutes adds live status values and links to the /debug/ index.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Pose", func() any { return s.board.Get().Pose.String() })
	debug.KVFunc("Mode", func() any { return s.board.Get().Mode.String() })
	debug.KVFunc("Planner cycles", func() any { return s.board.Get().Cycles })
	debug.KVFunc("Queued commands", func() any { return s.mail.Len() })
	debug.URL("/api/map.html", "Street map")
	debug.URL("/api/map.png", "Street map (PNG)")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type coordJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func toCoordJSON(c *streetmap.Coord) *coordJSON {
	if c == nil {
		return nil
	}
	return &coordJSON{X: c.X, Y: c.Y}
}

// PoseResponse is the body of GET /api/pose.
type PoseResponse struct {
	X             int         `json:"x"`
	Y             int         `json:"y"`
	Heading       int         `json:"heading"`
	HeadingName   string      `json:"heading_name"`
	Mode          nav.Mode    `json:"mode"`
	Paused        bool        `json:"paused"`
	Aligned       bool        `json:"aligned"`
	Goal          *coordJSON  `json:"goal,omitempty"`
	Far           *coordJSON  `json:"far,omitempty"`
	Route         []coordJSON `json:"route"`
	Intersections int         `json:"intersections"`
	LastError     string      `json:"last_error,omitempty"`
	Cycles        uint64      `json:"cycles"`
	Updated       time.Time   `json:"updated"`
}

func newPoseResponse(st nav.Status) PoseResponse {
	resp := PoseResponse{
		X:             st.Pose.X,
		Y:             st.Pose.Y,
		Heading:       int(st.Pose.Heading),
		HeadingName:   st.Pose.Heading.String(),
		Mode:          st.Mode,
		Paused:        st.Paused,
		Aligned:       st.Aligned,
		Goal:          toCoordJSON(st.Goal),
		Far:           toCoordJSON(st.Far),
		Route:         make([]coordJSON, len(st.Route)),
		Intersections: len(st.Map.Intersections),
		LastError:     st.LastError,
		Cycles:        st.Cycles,
		Updated:       st.Updated,
	}
	for i, c := range st.Route {
		resp.Route[i] = coordJSON{X: c.X, Y: c.Y}
	}
	return resp
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newPoseResponse(s.board.Get())); err != nil {
		monitoring.Logf("api: failed to write pose: %v", err)
	}
}

// render buffers the output so that a failed render can still produce an
// error status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, contentType string,
	draw func(*bytes.Buffer, streetmap.Snapshot, []streetmap.Coord) error) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	st := s.board.Get()
	var buf bytes.Buffer
	if err := draw(&buf, st.Map, st.Route); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render map: %v", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) mapPNG(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "image/png", func(b *bytes.Buffer, snap streetmap.Snapshot, route []streetmap.Coord) error {
		return viz.RenderPNG(b, snap, route)
	})
}

func (s *Server) mapHTML(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "text/html; charset=utf-8", func(b *bytes.Buffer, snap streetmap.Snapshot, route []streetmap.Coord) error {
		return viz.RenderHTML(b, snap, route)
	})
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	line := r.FormValue("command")
	c, err := s.mail.PostLine(line, CommandSource)
	switch {
	case errors.Is(err, console.ErrMailboxFull):
		s.writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"queued": c.String()})
}
