package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"quizme/internal/app"
	"quizme/internal/domain"
)

const hostIDHeader = "X-Host-ID"

// QuizzesHandler serves quiz authoring for hosts. The host is identified by
// the X-Host-ID header set by the dashboard.
type QuizzesHandler struct {
	service  *app.QuizService
	validate *validator.Validate
	log      *slog.Logger
}

func NewQuizzesHandler(service *app.QuizService, log *slog.Logger) *QuizzesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &QuizzesHandler{service: service, validate: validator.New(), log: log}
}

func (h *QuizzesHandler) Routes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{quizID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Put("/slides", h.handleSaveSlide)
		r.Delete("/slides/{slideID}", h.handleDeleteSlide)
	})
}

type createQuizRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type slideRequest struct {
	ID           int64           `json:"id" validate:"min=0"`
	Position     int             `json:"position" validate:"min=0"`
	Question     string          `json:"question" validate:"max=500"`
	QuestionType string          `json:"questionType" validate:"required,oneof=multiple_choice checkbox scale"`
	Options      []string        `json:"options" validate:"required,min=1,max=10,dive,max=200"`
	Answer       json.RawMessage `json:"answer" validate:"required"`
	Note         string          `json:"note" validate:"max=500"`
}

func (req slideRequest) slide() (domain.Slide, error) {
	qt := domain.QuestionType(req.QuestionType)
	answer, err := domain.DecodeAnswer(qt, req.Answer)
	if err != nil {
		return domain.Slide{}, fmt.Errorf("%w: %v", domain.ErrInvalidSlide, err)
	}
	return domain.Slide{
		ID:           req.ID,
		Position:     req.Position,
		Question:     req.Question,
		QuestionType: qt,
		Options:      req.Options,
		Answer:       answer,
		Note:         req.Note,
	}, nil
}

func (h *QuizzesHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), hostID(r), req.Title)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *QuizzesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListQuizzes(r.Context(), hostID(r))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *QuizzesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.Quiz(r.Context(), hostID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *QuizzesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuiz(r.Context(), hostID(r), chi.URLParam(r, "quizID")); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuizzesHandler) handleSaveSlide(w http.ResponseWriter, r *http.Request) {
	var req slideRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	slide, err := req.slide()
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	saved, err := h.service.SaveSlide(r.Context(), hostID(r), chi.URLParam(r, "quizID"), slide)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *QuizzesHandler) handleDeleteSlide(w http.ResponseWriter, r *http.Request) {
	slideID, err := strconv.ParseInt(chi.URLParam(r, "slideID"), 10, 64)
	if err != nil {
		writeError(w, h.log, r, domain.ErrSlideNotFound)
		return
	}
	if err := h.service.DeleteSlide(r.Context(), hostID(r), chi.URLParam(r, "quizID"), slideID); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuizzesHandler) bind(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

func hostID(r *http.Request) string {
	return r.Header.Get(hostIDHeader)
}
