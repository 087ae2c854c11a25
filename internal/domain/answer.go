package domain

// Approach is the retrieval strategy chosen by the routing step.
type Approach string

const (
	ApproachRAG Approach = "rag"
	ApproachSQL Approach = "sql"
)

// Decision is the parsed routing choice. SQLQuery is only meaningful for ApproachSQL.
type Decision struct {
	Approach Approach
	SQLQuery string
	CallID   string
	CallName string
}

// Outcome is the terminal state an ask reached.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeNoDecision Outcome = "no_decision"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

// Fixed user-visible answers for the terminal non-synthesis paths.
const (
	AnswerNoDecision = "No function call was produced by the LLM. Could not proceed."
	AnswerNoSQLQuery = "No SQL query provided by LLM."
)

// AskResult is the response to one question.
type AskResult struct {
	Answer      string    `json:"answer"`
	ChatHistory []Message `json:"chat_history,omitempty"`
	Approach    Approach  `json:"-"`
	Outcome     Outcome   `json:"-"`
}
