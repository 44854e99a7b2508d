package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"quizme/internal/app"
	"quizme/internal/domain"
)

const hostTokenHeader = "X-Host-Token"

// RoomsHandler serves the host REST API.
type RoomsHandler struct {
	service  *app.RoomService
	validate *validator.Validate
	log      *slog.Logger
}

func NewRoomsHandler(service *app.RoomService, log *slog.Logger) *RoomsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RoomsHandler{service: service, validate: validator.New(), log: log}
}

func (h *RoomsHandler) Routes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Route("/{code}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/start", h.handleStart)
		r.Post("/advance", h.handleAdvance)
		r.Post("/results", h.handleShowResults)
		r.Get("/results", h.handleResults)
		r.Patch("/settings", h.handleSettings)
		r.Get("/stats", h.handleStats)
		r.Post("/winners", h.handleWinner)
		r.Get("/winners", h.handleListWinners)
	})
}

type createRoomRequest struct {
	QuizID string `json:"quizId" validate:"required,max=64"`
}

type createRoomResponse struct {
	Room      domain.RoomView `json:"room"`
	HostToken string          `json:"hostToken"`
}

type advanceRequest struct {
	Delta int `json:"delta" validate:"oneof=-1 1"`
}

type winnerRequest struct {
	Name        string `json:"name" validate:"required"`
	Token       string `json:"token" validate:"required"`
	ContactName string `json:"contactName"`
	Email       string `json:"email"`
}

func (h *RoomsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	room, err := h.service.CreateRoom(r.Context(), req.QuizID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{Room: room.View(), HostToken: room.HostToken})
}

func (h *RoomsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.Room(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *RoomsHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	opts := app.StartOptions{WinnerCount: 1}
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	room, err := h.service.Start(r.Context(), chi.URLParam(r, "code"), hostToken(r), opts)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *RoomsHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	req := advanceRequest{Delta: 1}
	if err := h.bind(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	room, err := h.service.Advance(r.Context(), chi.URLParam(r, "code"), hostToken(r), req.Delta)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *RoomsHandler) handleShowResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.ShowResults(r.Context(), chi.URLParam(r, "code"), hostToken(r))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *RoomsHandler) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *RoomsHandler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var settings app.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	room, err := h.service.UpdateSettings(r.Context(), chi.URLParam(r, "code"), hostToken(r), settings)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room.View())
}

func (h *RoomsHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SlideStats(r.Context(), chi.URLParam(r, "code"), hostToken(r))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RoomsHandler) handleWinner(w http.ResponseWriter, r *http.Request) {
	var req winnerRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	contact := domain.Contact{Name: req.ContactName, Email: req.Email}
	winner, err := h.service.SubmitWinnerContact(r.Context(), chi.URLParam(r, "code"), req.Name, req.Token, contact)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, winner)
}

func (h *RoomsHandler) handleListWinners(w http.ResponseWriter, r *http.Request) {
	winners, err := h.service.WinnerContacts(r.Context(), chi.URLParam(r, "code"), hostToken(r))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, winners)
}

func (h *RoomsHandler) bind(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

func hostToken(r *http.Request) string {
	return r.Header.Get(hostTokenHeader)
}
