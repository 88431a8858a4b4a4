package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

const maxRoomCodeAttempts = 32

// Defaults fill in creation parameters the caller leaves empty.
type Defaults struct {
	QuestionsCount  int
	TimePerQuestion int
	Difficulty      string
	MaxQuestions    int
}

// DefaultSettings mirrors what the service uses without configuration.
func DefaultSettings() Defaults {
	return Defaults{QuestionsCount: 10, TimePerQuestion: 30, Difficulty: "medium", MaxQuestions: 50}
}

type Option func(*QuizService)

func WithArchiver(a Archiver) Option { return func(s *QuizService) { s.archive = a } }

func WithRoomCodes(r RoomCodeRegistry) Option { return func(s *QuizService) { s.codes = r } }

func WithLogger(l *zap.Logger) Option { return func(s *QuizService) { s.logger = l } }

func WithDefaults(d Defaults) Option { return func(s *QuizService) { s.defaults = d } }

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *QuizService) { s.now = now } }

// WithRoomCodeGenerator replaces the random join-code source.
func WithRoomCodeGenerator(gen func() (string, error)) Option {
	return func(s *QuizService) { s.newCode = gen }
}

// QuizService is the live session engine: it validates commands against the
// session state machine, mutates the store and publishes the resulting events.
type QuizService struct {
	store     Store
	generator Generator
	hub       Broadcaster
	archive   Archiver
	codes     RoomCodeRegistry
	logger    *zap.Logger
	now       func() time.Time
	newCode   func() (string, error)
	defaults  Defaults

	mu    sync.Mutex
	locks map[int64]*sessionLock
}

// sessionLock serialises every mutation of one session and numbers its broadcasts.
// refs and prunable are guarded by QuizService.mu.
type sessionLock struct {
	mu  sync.Mutex
	seq uint64

	refs     int
	prunable bool
}

func NewQuizService(store Store, generator Generator, hub Broadcaster, opts ...Option) *QuizService {
	s := &QuizService{
		store:     store,
		generator: generator,
		hub:       hub,
		logger:    zap.NewNop(),
		now:       time.Now,
		newCode:   GenerateRoomCode,
		defaults:  DefaultSettings(),
		locks:     make(map[int64]*sessionLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession asks the generator for questions and stores the new session.
// No lock is held while the generator runs; malformed output stores nothing.
func (s *QuizService) CreateSession(ctx context.Context, in domain.CreateSessionInput) (domain.SessionWithQuestions, error) {
	in = s.withDefaults(in)
	if strings.TrimSpace(in.Topic) == "" {
		return domain.SessionWithQuestions{}, fmt.Errorf("topic is required: %w", domain.ErrMalformedCommand)
	}
	if in.QuestionsCount < 1 || in.QuestionsCount > s.defaults.MaxQuestions {
		return domain.SessionWithQuestions{}, fmt.Errorf("questions count %d out of range 1..%d: %w", in.QuestionsCount, s.defaults.MaxQuestions, domain.ErrMalformedCommand)
	}
	if in.TimePerQuestion < 1 {
		return domain.SessionWithQuestions{}, fmt.Errorf("time per question must be positive: %w", domain.ErrMalformedCommand)
	}

	req := domain.GenerationRequest{Topic: in.Topic, QuestionsCount: in.QuestionsCount, Difficulty: in.Difficulty}
	generated, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("quiz generation failed", zap.String("topic", in.Topic), zap.Error(err))
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			return domain.SessionWithQuestions{}, err
		}
		return domain.SessionWithQuestions{}, &domain.GenerationError{Cause: err}
	}
	if err := ValidateGenerated(req, generated); err != nil {
		s.logger.Warn("generator returned malformed quiz", zap.String("topic", in.Topic), zap.Error(err))
		return domain.SessionWithQuestions{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = generated.Title
	}
	session, err := s.createWithUniqueCode(ctx, domain.Session{
		Title:           title,
		Description:     in.Topic,
		QuestionsCount:  in.QuestionsCount,
		TimePerQuestion: in.TimePerQuestion,
		Phase:           domain.PhaseCreated,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return domain.SessionWithQuestions{}, err
	}

	questions := make([]domain.Question, len(generated.Questions))
	for i, q := range generated.Questions {
		questions[i] = domain.Question{
			SessionID:     session.ID,
			QuestionText:  q.Question,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.CorrectAnswer,
			Order:         i,
		}
	}
	stored, err := s.store.CreateQuestions(questions)
	if err != nil {
		_ = s.store.DeleteSession(session.ID)
		s.releaseCode(ctx, session.RoomCode)
		return domain.SessionWithQuestions{}, fmt.Errorf("store questions: %w", err)
	}

	s.logger.Info("session created",
		zap.Int64("session_id", session.ID),
		zap.String("room_code", session.RoomCode),
		zap.Int("questions", len(stored)))
	return domain.SessionWithQuestions{Session: session, Questions: stored}, nil
}

func (s *QuizService) withDefaults(in domain.CreateSessionInput) domain.CreateSessionInput {
	if in.QuestionsCount == 0 {
		in.QuestionsCount = s.defaults.QuestionsCount
	}
	if in.TimePerQuestion == 0 {
		in.TimePerQuestion = s.defaults.TimePerQuestion
	}
	if in.Difficulty == "" {
		in.Difficulty = s.defaults.Difficulty
	}
	return in
}

func (s *QuizService) createWithUniqueCode(ctx context.Context, session domain.Session) (domain.Session, error) {
	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Session{}, fmt.Errorf("generate room code: %w", err)
		}
		if s.codes != nil {
			ok, err := s.codes.Reserve(ctx, code)
			if err != nil {
				return domain.Session{}, fmt.Errorf("reserve room code: %w", err)
			}
			if !ok {
				s.logger.Debug("room code collision, regenerating", zap.String("room_code", code))
				continue
			}
		}

		session.RoomCode = code
		created, err := s.store.CreateSession(session)
		if errors.Is(err, domain.ErrRoomCodeTaken) {
			s.releaseCode(ctx, code)
			s.logger.Debug("room code collision, regenerating", zap.String("room_code", code))
			continue
		}
		if err != nil {
			s.releaseCode(ctx, code)
			return domain.Session{}, fmt.Errorf("store session: %w", err)
		}
		return created, nil
	}
	return domain.Session{}, fmt.Errorf("no free room code after %d attempts", maxRoomCodeAttempts)
}

func (s *QuizService) releaseCode(ctx context.Context, code string) {
	if s.codes == nil {
		return
	}
	if err := s.codes.Release(ctx, code); err != nil {
		s.logger.Warn("release room code", zap.String("room_code", code), zap.Error(err))
	}
}

// QuizWithQuestions returns a session and its questions in order.
func (s *QuizService) QuizWithQuestions(_ context.Context, sessionID int64) (domain.SessionWithQuestions, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return domain.SessionWithQuestions{}, err
	}
	questions, err := s.store.QuestionsBySession(sessionID)
	if err != nil {
		return domain.SessionWithQuestions{}, err
	}
	return domain.SessionWithQuestions{Session: session, Questions: questions}, nil
}

// SessionByRoomCode resolves a join code (case-insensitive).
func (s *QuizService) SessionByRoomCode(ctx context.Context, code string) (domain.SessionWithQuestions, error) {
	session, err := s.store.GetSessionByRoomCode(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.SessionWithQuestions{}, err
	}
	return s.QuizWithQuestions(ctx, session.ID)
}

// Join registers a new participant in the session behind roomCode.
func (s *QuizService) Join(ctx context.Context, roomCode, name string) (domain.Participant, domain.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Participant{}, domain.Session{}, fmt.Errorf("name is required: %w", domain.ErrMalformedCommand)
	}
	found, err := s.store.GetSessionByRoomCode(strings.ToUpper(strings.TrimSpace(roomCode)))
	if err != nil {
		return domain.Participant{}, domain.Session{}, err
	}

	l, session, err := s.acquire(found.ID)
	if err != nil {
		return domain.Participant{}, domain.Session{}, err
	}
	defer s.release(found.ID, l)

	if session.Phase == domain.PhaseCompleted {
		return domain.Participant{}, session, fmt.Errorf("join completed session: %w", domain.ErrInvalidTransition)
	}

	// connected only once a socket attaches
	participant, err := s.store.CreateParticipant(domain.Participant{
		SessionID: session.ID,
		Name:      name,
		JoinedAt:  s.now(),
	})
	if err != nil {
		return domain.Participant{}, session, fmt.Errorf("store participant: %w", err)
	}
	s.publishLocked(l, session.ID, domain.EvtParticipantJoined, domain.ParticipantPayload{Participant: participant})
	s.logger.Info("participant joined",
		zap.Int64("session_id", session.ID),
		zap.Int64("participant_id", participant.ID))
	return participant, session, nil
}

// Attach validates a connection's join handshake and runs attach under the session
// lock, so the snapshot it receives is ordered before every later broadcast.
func (s *QuizService) Attach(_ context.Context, sessionID int64, role domain.Role, participantID int64, attach func(domain.SessionSnapshot)) error {
	if role != domain.RolePresenter && role != domain.RoleParticipant {
		return fmt.Errorf("unknown role %q: %w", role, domain.ErrMalformedCommand)
	}

	l, session, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.release(sessionID, l)

	var participant domain.Participant
	if role == domain.RoleParticipant {
		participant, err = s.store.GetParticipant(participantID)
		if err != nil {
			return err
		}
		if participant.SessionID != sessionID {
			return fmt.Errorf("participant %d not in session %d: %w", participantID, sessionID, domain.ErrParticipantNotFound)
		}
	}

	participants, err := s.store.ParticipantsBySession(sessionID)
	if err != nil {
		return err
	}
	attach(domain.SessionSnapshot{Session: session, Participants: participants, Seq: l.seq})

	// completed sessions are read-only
	if role == domain.RoleParticipant && !participant.IsConnected && session.Phase != domain.PhaseCompleted {
		updated, err := s.store.SetParticipantConnected(participant.ID, true)
		if err != nil {
			return err
		}
		s.publishLocked(l, sessionID, domain.EvtParticipantJoined, domain.ParticipantPayload{Participant: updated})
	}
	return nil
}

// Detach runs detach under the session lock. detach returns how many connections
// the participant still has; at zero the participant is marked disconnected.
func (s *QuizService) Detach(_ context.Context, sessionID, participantID int64, detach func() int) {
	l, session, err := s.acquire(sessionID)
	if err != nil {
		detach()
		return
	}
	defer s.release(sessionID, l)

	remaining := detach()
	if participantID == 0 || remaining > 0 || session.Phase == domain.PhaseCompleted {
		return
	}
	participant, err := s.store.GetParticipant(participantID)
	if err != nil || !participant.IsConnected {
		return
	}
	updated, err := s.store.SetParticipantConnected(participantID, false)
	if err != nil {
		s.logger.Warn("mark participant disconnected", zap.Int64("participant_id", participantID), zap.Error(err))
		return
	}
	s.publishLocked(l, sessionID, domain.EvtParticipantLeft, domain.ParticipantPayload{Participant: updated})
}

// Start begins the quiz at question 0.
func (s *QuizService) Start(_ context.Context, sessionID int64) (domain.Session, error) {
	return s.transition(sessionID, domain.CmdStart, Start, func(next domain.Session) (domain.EventType, any, error) {
		return domain.EvtQuizStarted, domain.QuestionIndexPayload{CurrentQuestionIndex: next.CurrentQuestionIndex}, nil
	})
}

// Advance moves to questionIndex, which must be the next question.
func (s *QuizService) Advance(_ context.Context, sessionID int64, questionIndex int) (domain.Session, error) {
	apply := func(cur domain.Session) (domain.Session, error) { return Advance(cur, questionIndex) }
	return s.transition(sessionID, domain.CmdAdvance, apply, func(next domain.Session) (domain.EventType, any, error) {
		return domain.EvtNextQuestion, domain.QuestionIndexPayload{CurrentQuestionIndex: next.CurrentQuestionIndex}, nil
	})
}

func (s *QuizService) PauseTimer(_ context.Context, sessionID int64) (domain.Session, error) {
	return s.transition(sessionID, domain.CmdPauseTimer, PauseTimer, func(domain.Session) (domain.EventType, any, error) {
		return domain.EvtPauseTimer, nil, nil
	})
}

func (s *QuizService) ResumeTimer(_ context.Context, sessionID int64) (domain.Session, error) {
	return s.transition(sessionID, domain.CmdResumeTimer, ResumeTimer, func(domain.Session) (domain.EventType, any, error) {
		return domain.EvtResumeTimer, nil, nil
	})
}

// End completes the session and publishes the final ranking. Results are
// archived after the session lock is released.
func (s *QuizService) End(ctx context.Context, sessionID int64) ([]domain.Ranking, error) {
	var rankings []domain.Ranking
	session, err := s.transition(sessionID, domain.CmdEnd, End, func(next domain.Session) (domain.EventType, any, error) {
		r, err := s.rankings(next.ID)
		if err != nil {
			return "", nil, err
		}
		rankings = r
		return domain.EvtQuizCompleted, domain.RankingsPayload{Rankings: r}, nil
	})
	if err != nil {
		return nil, err
	}

	s.releaseCode(ctx, session.RoomCode)
	if s.archive != nil {
		if err := s.archive.SaveResults(ctx, session, rankings); err != nil {
			s.logger.Error("archive session results", zap.Int64("session_id", sessionID), zap.Error(err))
		}
	}
	return rankings, nil
}

// transition applies one state-machine step under the session lock. Nothing is
// written and nothing is published when apply or emit fails.
func (s *QuizService) transition(
	sessionID int64,
	cmd domain.CommandType,
	apply func(domain.Session) (domain.Session, error),
	emit func(domain.Session) (domain.EventType, any, error),
) (domain.Session, error) {
	l, current, err := s.acquire(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	defer s.release(sessionID, l)

	next, err := apply(current)
	if err != nil {
		s.logger.Info("transition rejected",
			zap.Int64("session_id", sessionID),
			zap.String("command", string(cmd)),
			zap.Error(err))
		return current, err
	}
	evtType, payload, err := emit(next)
	if err != nil {
		return current, err
	}
	if next.Phase == domain.PhaseCompleted {
		next.FinalSeq = l.seq + 1
	}
	if err := s.store.UpdateSession(next); err != nil {
		return current, fmt.Errorf("update session: %w", err)
	}
	s.publishLocked(l, sessionID, evtType, payload)
	if next.Phase == domain.PhaseCompleted {
		s.markPrunable(l)
	}
	s.logger.Debug("session transition",
		zap.Int64("session_id", sessionID),
		zap.String("command", string(cmd)),
		zap.String("phase", string(next.Phase)),
		zap.Int("question_index", next.CurrentQuestionIndex))
	return next, nil
}

// SubmitAnswer records a participant's answer for the current question.
// A sessionID of 0 resolves the session from the participant.
func (s *QuizService) SubmitAnswer(_ context.Context, sessionID int64, sub domain.AnswerSubmission) (domain.Response, error) {
	if sub.ResponseTime < 0 {
		return domain.Response{}, fmt.Errorf("negative response time: %w", domain.ErrMalformedCommand)
	}
	participant, err := s.store.GetParticipant(sub.ParticipantID)
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Response{}, err
	}
	if sessionID == 0 {
		if !found {
			return domain.Response{}, domain.Rejected(domain.ReasonUnknownParticipant)
		}
		sessionID = participant.SessionID
	}
	l, session, err := s.acquire(sessionID)
	if err != nil {
		return domain.Response{}, err
	}
	defer s.release(sessionID, l)

	var current domain.Question
	if session.Phase == domain.PhaseActive {
		questions, err := s.store.QuestionsBySession(sessionID)
		if err != nil {
			return domain.Response{}, err
		}
		if session.CurrentQuestionIndex < len(questions) {
			current = questions[session.CurrentQuestionIndex]
		}
	}

	var responses []domain.Response
	if current.ID != 0 {
		responses, err = s.store.ResponsesByQuestion(current.ID)
		if err != nil {
			return domain.Response{}, err
		}
	}
	hasPrior := false
	for _, r := range responses {
		if r.ParticipantID == sub.ParticipantID {
			hasPrior = true
			break
		}
	}

	if err := checkSubmission(session, current, participant, found, sub, hasPrior); err != nil {
		s.logger.Info("response rejected",
			zap.Int64("session_id", sessionID),
			zap.Int64("participant_id", sub.ParticipantID),
			zap.Int64("question_id", sub.QuestionID),
			zap.Error(err))
		return domain.Response{}, err
	}

	response, err := s.store.CreateResponse(domain.Response{
		ParticipantID:  sub.ParticipantID,
		QuestionID:     sub.QuestionID,
		SelectedAnswer: sub.SelectedAnswer,
		ResponseTime:   sub.ResponseTime,
		SubmittedAt:    s.now(),
	})
	if errors.Is(err, domain.ErrDuplicateResponse) {
		return domain.Response{}, domain.Rejected(domain.ReasonDuplicateResponse)
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("store response: %w", err)
	}

	responses = append(responses, response)
	s.publishLocked(l, sessionID, domain.EvtAnswerTallyUpdated, domain.TallyPayload{
		QuestionID: current.ID,
		Responses:  responses,
		Tally:      LiveTally(current, responses),
	})
	return response, nil
}

// Stats reports participation; questionID 0 skips the per-question figures.
func (s *QuizService) Stats(_ context.Context, sessionID, questionID int64) (domain.QuizStats, error) {
	if _, err := s.store.GetSession(sessionID); err != nil {
		return domain.QuizStats{}, err
	}
	participants, err := s.store.ParticipantsBySession(sessionID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	if questionID == 0 {
		return QuizStats(participants, nil, nil), nil
	}

	question, err := s.store.GetQuestion(questionID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	if question.SessionID != sessionID {
		return domain.QuizStats{}, fmt.Errorf("question %d not in session %d: %w", questionID, sessionID, domain.ErrQuestionNotFound)
	}
	responses, err := s.store.ResponsesByQuestion(questionID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	return QuizStats(participants, &question, responses), nil
}

// Tally returns the live per-option counts for the session's current question.
func (s *QuizService) Tally(_ context.Context, sessionID int64) (domain.LiveTally, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return domain.LiveTally{}, err
	}
	if session.Phase != domain.PhaseActive {
		return domain.LiveTally{}, fmt.Errorf("tally in %s session: %w", session.Phase, domain.ErrInvalidTransition)
	}
	questions, err := s.store.QuestionsBySession(sessionID)
	if err != nil {
		return domain.LiveTally{}, err
	}
	if session.CurrentQuestionIndex >= len(questions) {
		return domain.LiveTally{}, domain.ErrQuestionNotFound
	}
	current := questions[session.CurrentQuestionIndex]
	responses, err := s.store.ResponsesByQuestion(current.ID)
	if err != nil {
		return domain.LiveTally{}, err
	}
	return LiveTally(current, responses), nil
}

// Rankings returns the final leaderboard of a completed session.
func (s *QuizService) Rankings(_ context.Context, sessionID int64) ([]domain.Ranking, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != domain.PhaseCompleted {
		return nil, fmt.Errorf("rankings for %s session: %w", session.Phase, domain.ErrInvalidTransition)
	}
	return s.rankings(sessionID)
}

// Results serves a completed session's outcome, archive first. While the
// session is still in the store, only an archived row that describes it is served.
func (s *QuizService) Results(ctx context.Context, sessionID int64) (domain.SessionResults, error) {
	session, storeErr := s.store.GetSession(sessionID)
	if storeErr != nil && !errors.Is(storeErr, domain.ErrNotFound) {
		return domain.SessionResults{}, storeErr
	}
	if s.archive != nil {
		res, err := s.archive.LoadResults(ctx, sessionID)
		switch {
		case err == nil && (storeErr != nil || res.Describes(session)):
			return res, nil
		case err == nil:
			s.logger.Debug("archived results belong to an earlier session",
				zap.Int64("session_id", sessionID),
				zap.String("archived_room_code", res.RoomCode))
		case !errors.Is(err, domain.ErrNotFound):
			return domain.SessionResults{}, err
		}
	}
	if storeErr != nil {
		return domain.SessionResults{}, storeErr
	}
	rankings, err := s.Rankings(ctx, sessionID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	return domain.SessionResults{
		SessionID: session.ID,
		RoomCode:  session.RoomCode,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		Rankings:  rankings,
	}, nil
}

func (s *QuizService) rankings(sessionID int64) ([]domain.Ranking, error) {
	questions, err := s.store.QuestionsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ParticipantsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	var responses []domain.Response
	for _, q := range questions {
		rs, err := s.store.ResponsesByQuestion(q.ID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, rs...)
	}
	return FinalRanking(questions, participants, responses), nil
}

// acquire locks sessionID and returns the session as read under the lock.
// Every successful acquire must be paired with release.
func (s *QuizService) acquire(sessionID int64) (*sessionLock, domain.Session, error) {
	// unknown ids never get a lock entry
	if _, err := s.store.GetSession(sessionID); err != nil {
		return nil, domain.Session{}, err
	}

	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		s.markPrunable(l)
		s.release(sessionID, l)
		return nil, domain.Session{}, err
	}
	if session.Phase == domain.PhaseCompleted {
		// a recreated entry continues from the last published seq
		if l.seq < session.FinalSeq {
			l.seq = session.FinalSeq
		}
		s.markPrunable(l)
	}
	return l, session, nil
}

// release unlocks l and drops the entry of a finished session nobody else holds.
func (s *QuizService) release(sessionID int64, l *sessionLock) {
	l.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 && l.prunable && s.locks[sessionID] == l {
		delete(s.locks, sessionID)
	}
}

func (s *QuizService) markPrunable(l *sessionLock) {
	s.mu.Lock()
	l.prunable = true
	s.mu.Unlock()
}

// publishLocked must be called with l.mu held so per-recipient order matches transition order.
func (s *QuizService) publishLocked(l *sessionLock, sessionID int64, evtType domain.EventType, payload any) {
	l.seq++
	s.hub.Broadcast(sessionID, domain.Event{
		Type:      evtType,
		SessionID: sessionID,
		Seq:       l.seq,
		Payload:   payload,
	})
}
