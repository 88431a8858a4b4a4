package domain

// EventType tags outbound messages.
type EventType string

const (
	EvtParticipantJoined  EventType = "participant_joined"
	EvtParticipantLeft    EventType = "participant_left"
	EvtAnswerTallyUpdated EventType = "answer_tally_updated"
	EvtQuizStarted        EventType = "quiz_started"
	EvtNextQuestion       EventType = "next_question"
	EvtPauseTimer         EventType = "pause_timer"
	EvtResumeTimer        EventType = "resume_timer"
	EvtQuizCompleted      EventType = "quiz_completed"
	EvtError              EventType = "error"

	// unicast only
	EvtJoined         EventType = "joined"
	EvtAnswerAccepted EventType = "answer_accepted"
	EvtPong           EventType = "pong"
)

// CommandType tags inbound messages.
type CommandType string

const (
	CmdJoinRoom     CommandType = "join_room"
	CmdSubmitAnswer CommandType = "submit_answer"
	CmdStart        CommandType = "start"
	CmdAdvance      CommandType = "advance"
	CmdPauseTimer   CommandType = "pause_timer"
	CmdResumeTimer  CommandType = "resume_timer"
	CmdEnd          CommandType = "end"
	CmdPing         CommandType = "ping"
)

// Event is one outbound message. Seq is assigned per session for broadcasts.
type Event struct {
	Type      EventType `json:"type"`
	SessionID int64     `json:"sessionId,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

type ParticipantPayload struct {
	Participant Participant `json:"participant"`
}

type TallyPayload struct {
	QuestionID int64      `json:"questionId"`
	Responses  []Response `json:"responses"`
	Tally      LiveTally  `json:"tally"`
}

type QuestionIndexPayload struct {
	CurrentQuestionIndex int `json:"currentQuestionIndex"`
}

type RankingsPayload struct {
	Rankings []Ranking `json:"rankings"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds the unicast reply for a failed command.
func ErrorEvent(err error) Event {
	return Event{
		Type:    EvtError,
		Payload: ErrorPayload{Code: ErrorCode(err), Message: err.Error()},
	}
}
