package memory

import (
	"fmt"
	"sort"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Sequence names used for id generation.
const (
	SeqSessions     = "sessions"
	SeqQuestions    = "questions"
	SeqParticipants = "participants"
	SeqResponses    = "responses"
)

// Store is an in-memory implementation of app.Store. Ids come from the injected
// sequence so a shared or persistent counter can be swapped in. Ids are drawn
// before the store lock is taken; a failed insert leaves a gap.
type Store struct {
	seq app.Sequence

	mu           sync.RWMutex
	sessions     map[int64]domain.Session
	roomCodes    map[string]int64
	questions    map[int64]domain.Question
	questionIDs  map[int64][]int64 // by session
	participants map[int64]domain.Participant
	rosters      map[int64][]int64 // by session, creation order
	responses    map[int64]domain.Response
	answers      map[int64][]int64 // by question, creation order
	answered     map[answerKey]int64
}

type answerKey struct {
	participantID int64
	questionID    int64
}

func NewStore(seq app.Sequence) *Store {
	if seq == nil {
		seq = NewSequence()
	}
	return &Store{
		seq:          seq,
		sessions:     make(map[int64]domain.Session),
		roomCodes:    make(map[string]int64),
		questions:    make(map[int64]domain.Question),
		questionIDs:  make(map[int64][]int64),
		participants: make(map[int64]domain.Participant),
		rosters:      make(map[int64][]int64),
		responses:    make(map[int64]domain.Response),
		answers:      make(map[int64][]int64),
		answered:     make(map[answerKey]int64),
	}
}

func (s *Store) CreateSession(session domain.Session) (domain.Session, error) {
	id, err := s.seq.Next(SeqSessions)
	if err != nil {
		return domain.Session{}, fmt.Errorf("next session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.roomCodes[session.RoomCode]; taken {
		return domain.Session{}, domain.ErrRoomCodeTaken
	}
	session.ID = id
	s.sessions[id] = session
	s.roomCodes[session.RoomCode] = id
	return session, nil
}

func (s *Store) GetSession(id int64) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSessionByRoomCode(code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomCodes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) UpdateSession(session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	// the join code is fixed at creation
	session.RoomCode = existing.RoomCode
	s.sessions[session.ID] = session
	return nil
}

// DeleteSession drops a session and its questions. Used only to roll back a failed creation.
func (s *Store) DeleteSession(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for _, qid := range s.questionIDs[id] {
		delete(s.questions, qid)
	}
	delete(s.questionIDs, id)
	delete(s.roomCodes, session.RoomCode)
	delete(s.sessions, id)
	return nil
}

// CreateQuestions stores all questions or none.
func (s *Store) CreateQuestions(questions []domain.Question) ([]domain.Question, error) {
	ids := make([]int64, len(questions))
	for i := range ids {
		id, err := s.seq.Next(SeqQuestions)
		if err != nil {
			return nil, fmt.Errorf("next question id: %w", err)
		}
		ids[i] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]domain.Question, len(questions))
	for i, q := range questions {
		if _, ok := s.sessions[q.SessionID]; !ok {
			return nil, domain.ErrSessionNotFound
		}
		q.ID = ids[i]
		q.Options = append([]string(nil), q.Options...)
		created[i] = q
	}
	for _, q := range created {
		s.questions[q.ID] = q
		s.questionIDs[q.SessionID] = append(s.questionIDs[q.SessionID], q.ID)
	}
	return created, nil
}

func (s *Store) GetQuestion(id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

// QuestionsBySession returns questions sorted by their order field.
func (s *Store) QuestionsBySession(sessionID int64) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	ids := s.questionIDs[sessionID]
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.questions[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) CreateParticipant(p domain.Participant) (domain.Participant, error) {
	id, err := s.seq.Next(SeqParticipants)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("next participant id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[p.SessionID]; !ok {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	p.ID = id
	s.participants[id] = p
	s.rosters[p.SessionID] = append(s.rosters[p.SessionID], id)
	return p, nil
}

func (s *Store) GetParticipant(id int64) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) ParticipantsBySession(sessionID int64) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	ids := s.rosters[sessionID]
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.participants[id])
	}
	return out, nil
}

func (s *Store) SetParticipantConnected(id int64, connected bool) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	p.IsConnected = connected
	s.participants[id] = p
	return p, nil
}

// CreateResponse refuses a second response for the same (participant, question).
func (s *Store) CreateResponse(r domain.Response) (domain.Response, error) {
	id, err := s.seq.Next(SeqResponses)
	if err != nil {
		return domain.Response{}, fmt.Errorf("next response id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[r.ParticipantID]; !ok {
		return domain.Response{}, domain.ErrParticipantNotFound
	}
	if _, ok := s.questions[r.QuestionID]; !ok {
		return domain.Response{}, domain.ErrQuestionNotFound
	}
	key := answerKey{participantID: r.ParticipantID, questionID: r.QuestionID}
	if _, dup := s.answered[key]; dup {
		return domain.Response{}, domain.ErrDuplicateResponse
	}
	r.ID = id
	s.responses[id] = r
	s.answers[r.QuestionID] = append(s.answers[r.QuestionID], id)
	s.answered[key] = id
	return r, nil
}

func (s *Store) ResponsesByQuestion(questionID int64) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.questions[questionID]; !ok {
		return nil, domain.ErrQuestionNotFound
	}
	ids := s.answers[questionID]
	out := make([]domain.Response, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.responses[id])
	}
	return out, nil
}
