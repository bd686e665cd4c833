package app

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vk/minemods/internal/assets"
	"github.com/vk/minemods/internal/mods"
)

// ModsReport is the body served by GET /mods.
type ModsReport struct {
	Counts          mods.Counts              `json:"counts"`
	Discovered      []mods.Summary           `json:"discovered"`
	Loaded          []string                 `json:"loaded"`
	LoadOrder       []string                 `json:"load_order"`
	DiscoveryErrors []string                 `json:"discovery_errors"`
	Conflicts       map[string][]assets.Info `json:"conflicts"`
	Relations       map[string]mods.Links    `json:"relations,omitempty"`
}

// Report returns a snapshot of the mod system for status output.
func (a *App) Report() ModsReport {
	found := a.manager.Discovered()
	summaries := make([]mods.Summary, 0, len(found))
	for _, d := range found {
		summaries = append(summaries, d.Summary())
	}
	relations, err := a.manager.Relations()
	if err != nil {
		a.logger.Debug("Mod relations unavailable.", "error", err)
	}
	return ModsReport{
		Counts:          a.manager.Counts(),
		Discovered:      summaries,
		Loaded:          a.manager.Loaded(),
		LoadOrder:       a.manager.LoadOrder(),
		DiscoveryErrors: a.manager.DiscoveryErrors(),
		Conflicts:       a.assets.Conflicts(),
		Relations:       relations,
	}
}

func (a *App) statusMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /mods", a.modsHandler)
	mux.HandleFunc("GET /events", a.eventsHandler)
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) modsHandler(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, a.Report())
}

func (a *App) eventsHandler(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, a.bus.Stats())
}

func (a *App) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		a.logger.Warn("Failed to write status response.", "error", err)
	}
}
