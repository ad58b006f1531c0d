package serialmux

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminFS embed.FS

var consoleTemplate = template.Must(template.ParseFS(adminFS, "templates/controller.html.tmpl"))

// controllerKeywords are the commands the firmware accepts.
var controllerKeywords = map[string]bool{
	"PING":  true,
	"STOP":  true,
	"PWM":   true,
	"RATE":  true,
	"RESET": true,
}

// CheckCommand rejects lines the firmware would answer with ERR.
func CheckCommand(command string) error {
	word, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	if word == "" {
		return fmt.Errorf("empty command")
	}
	if !controllerKeywords[word] {
		return fmt.Errorf("unknown controller command %q", word)
	}
	return nil
}

func writeStats(w http.ResponseWriter, st Stats) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// AttachAdminRoutes mounts a console page that tails telemetry and sends
// commands, plus a JSON counters route.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("controller", "controller link console", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := consoleTemplate.Execute(&buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		buf.WriteTo(w)
	})

	debug.HandleFunc("controller-stats", "controller link counters", func(w http.ResponseWriter, r *http.Request) {
		writeStats(w, s.Stats())
	})

	debug.HandleSilentFunc("controller-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if err := CheckCommand(command); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command: "+err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "sent %q", command)
	})

	// Server-sent events, one per telemetry line.
	debug.HandleSilentFunc("controller-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, lines := s.Subscribe()
		defer s.Unsubscribe(id)

		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("controller.js", func(w http.ResponseWriter, r *http.Request) {
		data, err := adminFS.ReadFile("templates/controller.js")
		if err != nil {
			http.Error(w, "Failed to open controller.js", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	})
}
