package domain

import "time"

// Phase is the lifecycle state of a quiz session.
type Phase string

const (
	PhaseCreated   Phase = "created"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
)

// Role identifies which side of a session a connection speaks for.
type Role string

const (
	RolePresenter   Role = "presenter"
	RoleParticipant Role = "participant"
)

// OptionsPerQuestion is fixed: every question has exactly four choices.
const OptionsPerQuestion = 4

// Session is one live quiz instance.
type Session struct {
	ID                   int64     `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	QuestionsCount       int       `json:"questionsCount"`
	TimePerQuestion      int       `json:"timePerQuestion"`
	RoomCode             string    `json:"roomCode"`
	Phase                Phase     `json:"phase"`
	TimerRunning         bool      `json:"timerRunning"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	CreatedAt            time.Time `json:"createdAt"`
	// seq of the quiz_completed event; no events follow it
	FinalSeq             uint64    `json:"finalSeq,omitempty"`
}

// Question models an MCQ question; immutable once stored.
type Question struct {
	ID            int64    `json:"id"`
	SessionID     int64    `json:"sessionId"`
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Order         int      `json:"order"`
}

// Participant is a joined user identified by display name.
type Participant struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"sessionId"`
	Name        string    `json:"name"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Response is one recorded answer. At most one exists per (participant, question).
type Response struct {
	ID             int64     `json:"id"`
	ParticipantID  int64     `json:"participantId"`
	QuestionID     int64     `json:"questionId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	ResponseTime   int       `json:"responseTime"` // whole seconds since the question was revealed
	SubmittedAt    time.Time `json:"submittedAt"`
}

// AnswerSubmission is the inbound shape of a participant answer.
type AnswerSubmission struct {
	ParticipantID  int64
	QuestionID     int64
	SelectedAnswer int
	ResponseTime   int
}

// SessionWithQuestions bundles a session with its questions in order.
type SessionWithQuestions struct {
	Session
	Questions []Question `json:"questions"`
}

// OptionTally is the live count for one option of the current question.
type OptionTally struct {
	Option     int `json:"option"`
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

// LiveTally is derived on demand and never stored.
type LiveTally struct {
	QuestionID int64         `json:"questionId"`
	Total      int           `json:"total"`
	Options    []OptionTally `json:"options"`
}

// QuizStats summarises a session, optionally for one question.
type QuizStats struct {
	TotalParticipants   int     `json:"totalParticipants"`
	ActiveParticipants  int     `json:"activeParticipants"`
	CurrentResponses    int     `json:"currentResponses"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	CorrectRate         float64 `json:"correctRate"`
}

// Ranking is one row of the final leaderboard.
type Ranking struct {
	ParticipantID       int64   `json:"participantId"`
	ParticipantName     string  `json:"participantName"`
	CorrectAnswers      int     `json:"correctAnswers"`
	TotalQuestions      int     `json:"totalQuestions"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	Rank                int     `json:"rank"`
	Score               int     `json:"score"` // percentage of correct answers
}

// GenerationRequest is what the engine asks the external generator for.
type GenerationRequest struct {
	Topic          string `json:"topic"`
	QuestionsCount int    `json:"questionsCount"`
	Difficulty     string `json:"difficulty"`
}

// GeneratedQuestion is one question as returned by the generator.
type GeneratedQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// GeneratedQuiz is the generator's output.
type GeneratedQuiz struct {
	Title     string              `json:"title"`
	Questions []GeneratedQuestion `json:"questions"`
}

// CreateSessionInput drives session creation.
type CreateSessionInput struct {
	Title           string `json:"title"`
	Topic           string `json:"topic"`
	QuestionsCount  int    `json:"questionsCount"`
	TimePerQuestion int    `json:"timePerQuestion"`
	Difficulty      string `json:"difficulty"`
}

// SessionSnapshot is sent to a connection after it joins so it can re-derive state.
type SessionSnapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	Seq          uint64        `json:"seq"` // last broadcast sequence number included in this view
}

// SessionResults is the archived outcome of a completed session. Session ids
// are only unique per store, so SessionID, RoomCode and CreatedAt together
// identify the session the results belong to.
type SessionResults struct {
	SessionID   int64     `json:"sessionId"`
	RoomCode    string    `json:"roomCode"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt"`
	Rankings    []Ranking `json:"rankings"`
}

// ArchiveTime truncates t to the precision the archive keeps.
func ArchiveTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Describes reports whether r was archived for s rather than for an earlier
// session that happened to get the same id.
func (r SessionResults) Describes(s Session) bool {
	return r.SessionID == s.ID &&
		r.RoomCode == s.RoomCode &&
		ArchiveTime(r.CreatedAt).Equal(ArchiveTime(s.CreatedAt))
}
