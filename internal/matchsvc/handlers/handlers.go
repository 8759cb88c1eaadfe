package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"

	"github.com/versusgg/versus-services/internal/matchsvc/models"
	"github.com/versusgg/versus-services/internal/matchsvc/service"
	"github.com/versusgg/versus-services/internal/matchsvc/session"
	"github.com/versusgg/versus-services/internal/matchsvc/store"
	"github.com/versusgg/versus-services/internal/matchsvc/ws"
)

type Handler struct {
	tokenAuth    *jwtauth.JWTAuth
	matches      *service.MatchService
	stats        *store.StatsStore
	achievements *store.AchievementStore
	socket       *ws.Ws
	sessions     *session.Manager
}

func NewHandler(matches *service.MatchService, stats *store.StatsStore,
	achievements *store.AchievementStore, socket *ws.Ws, sessions *session.Manager) *Handler {
	return &Handler{
		matches:      matches,
		stats:        stats,
		achievements: achievements,
		socket:       socket,
		sessions:     sessions,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.CreateResponse(w, Response{Code: statusFor(err), Error: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP codes. Race losses that the
// coordinator could not absorb surface as conflicts, not server errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidGameType),
		errors.Is(err, models.ErrIllegalMove),
		errors.Is(err, models.ErrInvalidResult):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrAlreadyFull),
		errors.Is(err, models.ErrRoomFull),
		errors.Is(err, models.ErrNotYourTurn),
		errors.Is(err, models.ErrMatchNotReady),
		errors.Is(err, models.ErrAlreadyCompleted),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrAlreadyInitialized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// callerID pulls the authenticated user id out of the JWT claims.
func callerID(r *http.Request) (int64, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return 0, models.ErrUnauthorized
	}
	switch v := claims["user_id"].(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, models.ErrUnauthorized
		}
		return id, nil
	default:
		return 0, models.ErrUnauthorized
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "match service is running at port " + os.Getenv("MATCH_SERVICE_PORT"),
		Code:    200,
		Data:    map[string]int{"live_rooms": h.sessions.Len()},
	})
}

func (h *Handler) CreateMatchHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	var req struct {
		GameType models.GameType `json:"game_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "malformed request body"})
		return
	}

	grant, err := h.matches.CreateRoom(r.Context(), req.GameType, userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "room created", Code: 201, Data: grant})
}

func (h *Handler) JoinMatchHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	roomID := chi.URLParam(r, "roomID")

	grant, err := h.matches.JoinRoom(r.Context(), roomID, userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "joined", Code: 200, Data: grant})
}

func (h *Handler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	m, snap, err := h.matches.GetRoom(r.Context(), roomID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: map[string]interface{}{
		"match": m,
		"live":  snap,
	}})
}

func (h *Handler) MoveHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req struct {
		PlayerNonce string `json:"player_nonce"`
		Move        string `json:"move"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "malformed request body"})
		return
	}

	res, err := h.matches.Move(r.Context(), roomID, req.PlayerNonce, req.Move)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: res})
}

func (h *Handler) ResignMatchHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req struct {
		PlayerNonce string `json:"player_nonce"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "malformed request body"})
		return
	}

	res, err := h.matches.Resign(r.Context(), roomID, req.PlayerNonce)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: res})
}

func (h *Handler) CompleteMatchHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	roomID := chi.URLParam(r, "roomID")

	var req struct {
		Result     models.MatchResult `json:"result"`
		WinnerID   *int64             `json:"winner_id"`
		MovesJSON  string             `json:"moves_json"`
		TotalMoves int                `json:"total_moves"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "malformed request body"})
		return
	}

	switch req.Result {
	case models.ResultWhiteWins, models.ResultBlackWins, models.ResultDraw, models.ResultAbandoned:
	default:
		h.CreateResponse(w, Response{Code: 400, Error: "invalid result"})
		return
	}
	if req.MovesJSON == "" {
		req.MovesJSON = "[]"
	}

	completed, err := h.matches.CompleteReported(r.Context(), roomID, userID, req.Result,
		req.WinnerID, req.MovesJSON, req.TotalMoves)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "completed", Code: 200, Data: completed})
}

func (h *Handler) UserStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "invalid user id"})
		return
	}

	st, err := h.stats.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: st})
}

func (h *Handler) UserAchievementsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "invalid user id"})
		return
	}

	list, err := h.achievements.ListByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: list})
}

func (h *Handler) WSHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	h.socket.HandleWS(w, r, roomID)
}
