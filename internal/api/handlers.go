package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/db"
	"github.com/manpreetbhatti/inkboard/internal/ws"
)

type API struct {
	hub      *ws.Hub
	database *db.Database
	logger   *zap.Logger
}

func New(hub *ws.Hub, database *db.Database, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		hub:      hub,
		database: database,
		logger:   logger,
	}
}

// Routes mounts the websocket endpoint and the operator API.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(a.hub, w, r)
	})
	r.Get("/health", a.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", a.StatsHandler)
		r.Get("/rooms", a.ListRoomsHandler)
		r.Get("/rooms/{id}", a.GetRoomHandler)
		r.Get("/sessions", a.ListSessionsHandler)
		r.Get("/sessions/{id}", a.GetSessionHandler)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("encoding JSON response", zap.Error(err))
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if rooms, err := a.hub.Presence().Rooms(r.Context()); err == nil {
		total := 0
		for _, n := range rooms {
			total += n
		}
		stats["participants"] = total
	} else {
		a.logger.Warn("presence rooms", zap.Error(err))
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["total_rooms"] = dbStats.RoomCount
			stats["total_sessions"] = dbStats.SessionCount
			stats["open_sessions"] = dbStats.OpenSessions
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	ID string `json:"id"`
	// Participants across every relay sharing the presence backend
	Participants int `json:"participants"`
	// Connections held by this relay
	LocalConnections int        `json:"local_connections"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.hub.Presence().Rooms(r.Context())
	if err != nil {
		a.logger.Warn("presence rooms", zap.Error(err))
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}
	local := a.hub.GetActiveRooms()

	response := make([]RoomResponse, 0, len(rooms))
	for id, n := range rooms {
		response = append(response, RoomResponse{ID: id, Participants: n, LocalConnections: local[id]})
	}
	sort.Slice(response, func(i, j int) bool { return response[i].ID < response[j].ID })

	a.jsonResponse(w, http.StatusOK, map[string]any{
		"rooms": response,
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	count, err := a.hub.Presence().Count(r.Context(), roomID)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to count participants")
		return
	}

	response := RoomResponse{
		ID:               roomID,
		Participants:     count,
		LocalConnections: a.hub.GetActiveRooms()[roomID],
	}

	if a.database != nil {
		room, err := a.database.GetRoom(roomID)
		if err != nil {
			a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
			return
		}
		if room != nil {
			response.CreatedAt = &room.CreatedAt
			response.UpdatedAt = &room.UpdatedAt
		}
	}

	if count == 0 && response.CreatedAt == nil {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	a.jsonResponse(w, http.StatusOK, response)
}

// Session handlers

func (a *API) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Session log disabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	roomID := r.URL.Query().Get("room_id")

	sessions, err := a.database.ListSessions(roomID, limit, offset)
	if err != nil {
		a.logger.Warn("list sessions", zap.Error(err))
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	a.jsonResponse(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
	})
}

func (a *API) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Session log disabled")
		return
	}

	session, err := a.database.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	if session == nil {
		a.errorResponse(w, http.StatusNotFound, "Session not found")
		return
	}

	a.jsonResponse(w, http.StatusOK, session)
}
