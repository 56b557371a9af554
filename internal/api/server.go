// Package api exposes the HTTP surface: deck browsing, quiz generation,
// session play, reader content, analytics, and background jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"studydeck/internal/ai"
	"studydeck/internal/analytics"
	"studydeck/internal/decks"
	"studydeck/internal/models"
	"studydeck/internal/quiz"
	"studydeck/internal/reader"
)

const maxMultipartMemory = 8 << 20 // 8 MB

// jobTimeout bounds background AI work so abandoned jobs cannot hold a
// connection to the model provider forever.
const jobTimeout = 10 * time.Minute

type Server struct {
	router    chi.Router
	decks     *decks.Service
	importer  *decks.Importer
	generator *quiz.Generator
	pipeline  *ai.Pipeline
	cache     *ai.Cache
	explainer *ai.Explainer
	reader    *reader.Service
	study     *reader.StudyStore
	analytics *analytics.Service
	sessions  *SessionManager
	jobs      *JobManager
	uploadDir string
}

func NewServer(
	deckSvc *decks.Service,
	importer *decks.Importer,
	generator *quiz.Generator,
	pipeline *ai.Pipeline,
	cache *ai.Cache,
	explainer *ai.Explainer,
	readerSvc *reader.Service,
	study *reader.StudyStore,
	analyticsSvc *analytics.Service,
	uploadDir string,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		decks:     deckSvc,
		importer:  importer,
		generator: generator,
		pipeline:  pipeline,
		cache:     cache,
		explainer: explainer,
		reader:    readerSvc,
		study:     study,
		analytics: analyticsSvc,
		sessions:  NewSessionManager(),
		jobs:      NewJobManager(),
		uploadDir: uploadDir,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/decks", func(r chi.Router) {
			r.Get("/", s.handleListDecks)
			r.Post("/", s.handleUploadDeck)
			r.Get("/{deckID}/cards", s.handleDeckCards)
			r.Get("/{deckID}/filters", s.handleDeckFilters)
			r.Post("/{deckID}/import", s.handleImportPDF)
		})

		r.Route("/cards/{cardID}", func(r chi.Router) {
			r.Post("/review", s.handleReviewCard)
			r.Post("/track", s.handleTrackCard)
		})

		r.Route("/quiz", func(r chi.Router) {
			r.Post("/generate", s.handleGenerateQuiz)
			r.Post("/ai/jobs", s.handleStartAIQuiz)
			r.Get("/ai/jobs/{jobID}", s.handleJobStatus)
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{sessionID}", s.handleGetSession)
			r.Post("/sessions/{sessionID}/answers", s.handleSubmitAnswer)
			r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
			r.Post("/explanations", s.handleExplain)
		})

		r.Route("/chapters", func(r chi.Router) {
			r.Get("/", s.handleListChapters)
			r.Get("/search", s.handleSearchChapters)
			r.Get("/{chapterID}", s.handleGetChapter)
		})

		r.Get("/study", s.handleGetStudyData)
		r.Put("/study", s.handlePutStudyData)
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/stats", s.handleAnalyticsStats)
			r.Get("/plan", s.handleGetStudyPlan)
			r.Post("/plan", s.handleRegenerateStudyPlan)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]any, 0)
	for _, deck := range s.decks.List() {
		out = append(out, map[string]any{
			"id":        deck.ID,
			"name":      deck.Name,
			"course":    deck.Course,
			"cardCount": len(deck.Cards),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": out})
}

func (s *Server) handleUploadDeck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMultipartMemory))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	deck, err := s.decks.Parse(body, "uploaded-deck")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.decks.Save(deck); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        deck.ID,
		"name":      deck.Name,
		"cardCount": len(deck.Cards),
	})
}

// deckCards resolves the path's deck selector; "all" aggregates every deck.
func (s *Server) deckCards(r *http.Request) ([]models.Flashcard, error) {
	deckID := chi.URLParam(r, "deckID")
	if deckID == "all" {
		deckID = ""
	}
	return s.decks.Cards(deckID)
}

func (s *Server) handleDeckCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.deckCards(r)
	if err != nil {
		writeDeckError(w, err)
		return
	}
	stats := s.analytics.AllCardStats()
	relevant := make(map[string]analytics.CardStats, len(cards))
	for _, card := range cards {
		if st, ok := stats[card.ID]; ok {
			relevant[card.ID] = st
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cards,
		"stats": relevant,
	})
}

func (s *Server) handleDeckFilters(w http.ResponseWriter, r *http.Request) {
	cards, err := s.deckCards(r)
	if err != nil {
		writeDeckError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz.AvailableFilters(cards))
}

type quizRequest struct {
	DeckID      string            `json:"deckId"`
	Config      models.QuizConfig `json:"config"`
	BypassCache bool              `json:"bypassCache,omitempty"`
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cards, err := s.decks.Cards(req.DeckID)
	if err != nil {
		writeDeckError(w, err)
		return
	}
	if len(quiz.Filter(cards, req.Config)) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no cards match the selected filters")
		return
	}

	questions := s.generator.Generate(cards, req.Config)
	if len(questions) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no questions could be generated for the selected types")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *Server) handleStartAIQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cards, err := s.decks.Cards(req.DeckID)
	if err != nil {
		writeDeckError(w, err)
		return
	}

	jobID := s.jobs.CreateJob(JobKindAIQuiz)
	cacheKey := s.cache.Key(req.DeckID, req.Config)

	if !req.BypassCache {
		if cached, ok := s.cache.Get(cacheKey); ok {
			s.jobs.CompleteQuiz(jobID, cached, true)
			writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
			return
		}
	}

	go s.runAIQuizJob(jobID, cacheKey, cards, req.Config)
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) runAIQuizJob(jobID, cacheKey string, cards []models.Flashcard, cfg models.QuizConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.jobs.MarkProcessing(jobID)
	questions, errs := s.pipeline.Generate(ctx, cards, cfg, func(progress float64, status string) {
		s.jobs.UpdateProgress(jobID, progress, status)
	})
	for _, msg := range errs {
		s.jobs.AddWarning(jobID, msg)
	}

	if len(questions) == 0 {
		msg := "AI generation produced no questions"
		if len(errs) > 0 {
			msg = strings.Join(errs, "; ")
		}
		s.jobs.MarkFailed(jobID, msg)
		return
	}

	s.cache.Put(cacheKey, questions)
	s.jobs.CompleteQuiz(jobID, questions, false)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.GetJob(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Questions []models.QuizQuestion `json:"questions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.sessions.Create(req.Questions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer models.Answer `json:"answer"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.sessions.Submit(chi.URLParam(r, "sessionID"), req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, quiz.ErrSessionComplete):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	// Completed sessions feed the learning analytics exactly once.
	if view.Complete && view.Result != nil {
		s.analytics.RecordQuizResult(*view.Result)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(chi.URLParam(r, "sessionID"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question   models.QuizQuestion `json:"question"`
		UserAnswer string              `json:"userAnswer"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	explanation, err := s.explainer.Explain(r.Context(), req.Question, req.UserAnswer)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "AI explanations are not configured")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, explanation)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"chapters": s.reader.List()})
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	chapter, err := s.reader.Get(chi.URLParam(r, "chapterID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chapter)
}

func (s *Server) handleSearchChapters(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": s.reader.Search(term)})
}

func (s *Server) handleGetStudyData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.study.StudyData())
}

func (s *Server) handlePutStudyData(w http.ResponseWriter, r *http.Request) {
	var data reader.StudyData
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.study.SaveStudyData(data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.study.Preferences())
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs reader.Preferences
	if err := decodeJSON(r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.study.SavePreferences(prefs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating string `json:"rating"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rating, err := analytics.ParseRating(req.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	due, err := s.analytics.ReviewCard(chi.URLParam(r, "cardID"), rating)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"due": due})
}

func (s *Server) handleTrackCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event       string  `json:"event"`
		TimeSpentMs int64   `json:"timeSpentMs,omitempty"`
		Confidence  float64 `json:"confidence,omitempty"`
		Flagged     bool    `json:"flagged,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cardID := chi.URLParam(r, "cardID")
	switch req.Event {
	case "flip":
		s.analytics.TrackCardFlip(cardID, time.Duration(req.TimeSpentMs)*time.Millisecond)
	case "confidence":
		s.analytics.TrackConfidence(cardID, req.Confidence)
	case "flag":
		s.analytics.TrackFlag(cardID, req.Flagged)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event %q", req.Event))
		return
	}
	writeJSON(w, http.StatusOK, s.analytics.CardStats(cardID))
}

func (s *Server) handleAnalyticsStats(w http.ResponseWriter, r *http.Request) {
	cards, err := s.decks.Cards("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards":    s.analytics.AllCardStats(),
		"quiz":     s.analytics.QuizStats(cards),
		"insights": s.analytics.Insights(),
	})
}

func (s *Server) handleGetStudyPlan(w http.ResponseWriter, r *http.Request) {
	if plan, ok := s.analytics.StoredPlan(); ok {
		writeJSON(w, http.StatusOK, plan)
		return
	}
	s.handleRegenerateStudyPlan(w, r)
}

func (s *Server) handleRegenerateStudyPlan(w http.ResponseWriter, r *http.Request) {
	cards, err := s.decks.Cards("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.analytics.GenerateStudyPlan(cards))
}

func (s *Server) handleImportPDF(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp(s.uploadDir, "import-*.pdf")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	tmp.Close()

	deckID := chi.URLParam(r, "deckID")
	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, ".pdf")
	}

	jobID := s.jobs.CreateJob(JobKindDeckImport)
	go s.runImportJob(jobID, deckID, name, tmp.Name())
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) runImportJob(jobID, deckID, name, pdfPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	defer func() {
		if err := os.Remove(pdfPath); err != nil {
			slog.Warn("failed to remove uploaded file", "path", pdfPath, "err", err)
		}
	}()

	s.jobs.MarkProcessing(jobID)
	deck, err := s.importer.ImportPDF(ctx, deckID, name, pdfPath, func(step, message string, current, total int) {
		s.jobs.UpdateStep(jobID, step, message, current, total)
	})
	if err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.CompleteImport(jobID, deck)
}

func writeDeckError(w http.ResponseWriter, err error) {
	if errors.Is(err, decks.ErrDeckNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
