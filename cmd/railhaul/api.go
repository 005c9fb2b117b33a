package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"railhaul/internal/config"
	"railhaul/internal/domain"
	"railhaul/internal/routing"
	"railhaul/internal/scheduler"
)

type stateSource interface {
	State() scheduler.State
}

type tickStore interface {
	ListTicks(ctx context.Context, limit int) ([]domain.TickRecord, error)
	GetTick(ctx context.Context, tickID string) (domain.TickRecord, error)
	ListTickMoves(ctx context.Context, tickID string) ([]domain.Move, error)
	ListTickDecisions(ctx context.Context, tickID string, limit int) ([]domain.DecisionLog, error)
}

type app struct {
	cfg     config.Config
	graph   *routing.Graph
	state   stateSource
	ticks   tickStore
	metrics http.Handler
}

type mapVertex struct {
	PointID int     `json:"point_id"`
	PostID  *int    `json:"post_id,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type mapLine struct {
	ID     int     `json:"id"`
	From   int     `json:"from"`
	To     int     `json:"to"`
	Length float64 `json:"length"`
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/config", a.handleConfig)
	mux.HandleFunc("/state", a.handleState)
	mux.HandleFunc("/map", a.handleMap)
	mux.HandleFunc("/ticks", a.handleTicks)
	mux.HandleFunc("/ticks/", a.handleTickByID)
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics)
	}
	return mux
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *app) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path": a.cfg.Path,
		"raw":  redact(a.cfg.Raw),
	})
}

// redact hides credentials from the raw config tree.
func redact(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "password" {
			out[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			v = redact(nested)
		}
		out[k] = v
	}
	return out
}

func (a *app) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.state.State())
}

func (a *app) handleMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	width, height := a.graph.Size()
	vertices := make([]mapVertex, 0, a.graph.Len())
	for i := 0; i < a.graph.Len(); i++ {
		v := a.graph.Vertex(i)
		item := mapVertex{PointID: v.PointID, X: v.X, Y: v.Y}
		if v.HasPost {
			id := v.PostID
			item.PostID = &id
		}
		vertices = append(vertices, item)
	}
	edges := a.graph.Edges()
	lines := make([]mapLine, 0, len(edges))
	for _, e := range edges {
		lines = append(lines, mapLine{
			ID:     e.ID,
			From:   a.graph.Vertex(e.From).PointID,
			To:     a.graph.Vertex(e.To).PointID,
			Length: e.Length,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size":   [2]float64{width, height},
		"points": vertices,
		"lines":  lines,
	})
}

func (a *app) handleTicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := a.ticks.ListTicks(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *app) handleTickByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trimmed := strings.TrimPrefix(r.URL.Path, "/ticks/")
	parts := strings.Split(trimmed, "/")
	tickID := parts[0]
	if tickID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tick id is required"))
		return
	}

	if len(parts) == 1 {
		tick, err := a.ticks.GetTick(r.Context(), tickID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		moves, err := a.ticks.ListTickMoves(r.Context(), tickID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tick": tick, "moves": moves})
		return
	}

	action := parts[1]
	switch action {
	case "decisions":
		limit := queryInt(r, "limit", 300)
		items, err := a.ticks.ListTickDecisions(r.Context(), tickID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action: %s", action))
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
