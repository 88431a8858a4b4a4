package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// APIHandler exposes the engine over JSON/HTTP. Every command it accepts is
// also available on the websocket.
type APIHandler struct {
	service *app.QuizService
	logger  *zap.Logger
}

func NewAPIHandler(service *app.QuizService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{service: service, logger: logger}
}

type joinRequest struct {
	Name string `json:"name"`
}

type joinResponse struct {
	Participant domain.Participant `json:"participant"`
	Quiz        domain.Session     `json:"quiz"`
}

type nextRequest struct {
	QuestionIndex *int `json:"questionIndex"`
}

type responseRequest struct {
	ParticipantID  int64 `json:"participantId"`
	QuestionID     int64 `json:"questionId"`
	SelectedAnswer *int  `json:"selectedAnswer"`
	ResponseTime   *int  `json:"responseTime"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *APIHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateSessionInput
	if !h.decode(w, r, &in) {
		return
	}
	quiz, err := h.service.CreateSession(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

// GetQuiz resolves a numeric id or, failing that, a join code.
func (h *APIHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")
	var (
		quiz domain.SessionWithQuestions
		err  error
	)
	if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
		quiz, err = h.service.QuizWithQuestions(r.Context(), id)
	} else {
		quiz, err = h.service.SessionByRoomCode(r.Context(), key)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

// Join takes the room code in the path.
func (h *APIHandler) Join(w http.ResponseWriter, r *http.Request) {
	var in joinRequest
	if !h.decode(w, r, &in) {
		return
	}
	participant, session, err := h.service.Join(r.Context(), chi.URLParam(r, "id"), in.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Participant: participant, Quiz: session})
}

func (h *APIHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Start(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) Next(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var in nextRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.QuestionIndex == nil {
		h.fail(w, fmt.Errorf("questionIndex is required: %w", domain.ErrMalformedCommand))
		return
	}
	session, err := h.service.Advance(r.Context(), id, *in.QuestionIndex)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.PauseTimer(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.ResumeTimer(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	rankings, err := h.service.End(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.RankingsPayload{Rankings: rankings})
}

func (h *APIHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	var in responseRequest
	if !h.decode(w, r, &in) {
		return
	}
	if in.ParticipantID == 0 || in.QuestionID == 0 || in.SelectedAnswer == nil || in.ResponseTime == nil {
		h.fail(w, fmt.Errorf("participantId, questionId, selectedAnswer and responseTime are required: %w", domain.ErrMalformedCommand))
		return
	}
	response, err := h.service.SubmitAnswer(r.Context(), 0, domain.AnswerSubmission{
		ParticipantID:  in.ParticipantID,
		QuestionID:     in.QuestionID,
		SelectedAnswer: *in.SelectedAnswer,
		ResponseTime:   *in.ResponseTime,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var questionID int64
	if raw := r.URL.Query().Get("questionId"); raw != "" {
		q, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(w, fmt.Errorf("questionId %q: %w", raw, domain.ErrMalformedCommand))
			return
		}
		questionID = q
	}
	stats, err := h.service.Stats(r.Context(), id, questionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) Tally(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	tally, err := h.service.Tally(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (h *APIHandler) Rankings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	rankings, err := h.service.Rankings(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.RankingsPayload{Rankings: rankings})
}

func (h *APIHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	results, err := h.service.Results(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIHandler) sessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, fmt.Errorf("session id %q: %w", raw, domain.ErrMalformedCommand))
		return 0, false
	}
	return id, true
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.fail(w, fmt.Errorf("invalid body: %w", domain.ErrMalformedCommand))
		return false
	}
	return true
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Code: domain.ErrorCode(err), Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrRejectedResponse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMalformedCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
