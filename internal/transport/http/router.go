package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"aptitude-ace/internal/app"
	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/flashcards"
)

// FlashcardGenerator produces study cards for a topic.
type FlashcardGenerator interface {
	Generate(ctx context.Context, req flashcards.Request) ([]domain.Flashcard, error)
}

// RouterDeps are the collaborators the HTTP surface needs. Flashcards and
// CurrentUser are optional.
type RouterDeps struct {
	Service     *app.QuizService
	Flashcards  FlashcardGenerator
	CurrentUser func() string
}

type api struct {
	service    *app.QuizService
	flashcards FlashcardGenerator
}

// NewRouter mounts the websocket endpoint and the local REST API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", NewWSHandler(deps.Service, deps.CurrentUser).ServeWS)

	h := &api{service: deps.Service, flashcards: deps.Flashcards}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/topics/{topicID}/stats", h.topicStats)
		r.Get("/topics/{topicID}/performance", h.lastPerformance)
		r.Get("/outbox", h.outbox)
		r.Post("/outbox/drain", h.drain)
		r.Post("/grand-test/eligibility", h.eligibility)
		r.Post("/flashcards", h.generateFlashcards)
	})
	return r
}

func (h *api) topicStats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Stats(r.Context(), chi.URLParam(r, "topicID"))
	writeJSON(w, http.StatusOK, stats)
}

func (h *api) lastPerformance(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.service.LastPerformance(r.Context(), chi.URLParam(r, "topicID"))
	if !ok {
		writeError(w, http.StatusNotFound, "no completed attempts for this topic")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *api) outbox(w http.ResponseWriter, r *http.Request) {
	pending := h.service.Pending(r.Context())
	if pending == nil {
		pending = []domain.PendingSubmission{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *api) drain(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Drain(r.Context())
	if err != nil {
		log.Printf("drain outbox: %v", err)
	}
	writeJSON(w, http.StatusOK, report)
}

type eligibilityRequest struct {
	Topics []domain.TopicProgress `json:"topics"`
}

func (h *api) eligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"eligible": app.CanUnlockGrandTest(req.Topics)})
}

func (h *api) generateFlashcards(w http.ResponseWriter, r *http.Request) {
	if h.flashcards == nil {
		writeError(w, http.StatusServiceUnavailable, "flashcard generation is not configured")
		return
	}
	var req flashcards.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cards, err := h.flashcards.Generate(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrTopicRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Printf("generate flashcards for %q: %v", req.Topic, err)
		writeError(w, http.StatusBadGateway, "could not generate flashcards")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"flashcards": cards})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}
