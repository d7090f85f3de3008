package crawler

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// OPSentinel is the placeholder responder name for follow-up comments left by
// the question's original poster. It is rewritten to the asker's real name
// before persistence whenever the asker is known.
const OPSentinel = "kerdezo_dummy_user"

// Page is a fetched and parsed HTML page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Doc        *goquery.Document
	FetchedAt  time.Time
}

// QuestionRecord captures the fields parsed from a question's first page.
type QuestionRecord struct {
	ExternalID  string     `json:"external_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	Body        string     `json:"body"`
	Keywords    []string   `json:"keywords"`
	Asker       string     `json:"asker"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
}

// AskerKnown reports whether the asker has a real display name.
func (q QuestionRecord) AskerKnown() bool {
	return q.Asker != "" && q.Asker != OPSentinel
}

// AnswerRecord is one answer of a thread. An empty Responder means the
// answer was posted anonymously.
type AnswerRecord struct {
	ExternalID    string     `json:"external_id"`
	Responder     string     `json:"responder"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
	Body          string     `json:"body"`
	UserPercent   *int       `json:"user_percent,omitempty"`
	AnswerPercent *int       `json:"answer_percent,omitempty"`
}

// IsOP reports whether the answer is tagged with the original-poster sentinel.
func (a AnswerRecord) IsOP() bool {
	return a.Responder == OPSentinel
}

// QuestionDocument is a complete thread: the question plus every answer in
// the order the site renders them across pages.
type QuestionDocument struct {
	Question QuestionRecord `json:"question"`
	Answers  []AnswerRecord `json:"answers"`
}

// ListEntry is one question row of a category list page.
type ListEntry struct {
	URL             string
	ExternalID      string
	ObservedAnswers *int
}

// IngestEvent is published after a thread has been committed to storage.
type IngestEvent struct {
	RunID      string    `json:"run_id"`
	ExternalID string    `json:"external_id"`
	QuestionID int64     `json:"question_id"`
	Answers    int       `json:"answers"`
	Action     string    `json:"action"`
	URL        string    `json:"url"`
	IngestedAt time.Time `json:"ingested_at"`
}
