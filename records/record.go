package records

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes plain posts from video uploads.
type Kind string

const (
	KindPost  Kind = "post"
	KindVideo Kind = "video"
)

// DateLayout is the layout used when a record's date is shown or stored as
// text.
const DateLayout = "2006-01-02"

// Record is one harvested feed item.
type Record struct {
	ID               string    `json:"id"`
	Author           string    `json:"author"`
	PublishedOn      time.Time `json:"published_on"`
	TimeLabel        string    `json:"time_label"`
	Kind             Kind      `json:"kind"`
	Text             string    `json:"text"`
	VideoDescription string    `json:"video_description,omitempty"`
	Likes            int       `json:"likes"`
	Comments         int       `json:"comments"`
	Reposts          int       `json:"reposts"`
	ImageURL         string    `json:"image_url,omitempty"`
	VideoURL         string    `json:"video_url,omitempty"`
	Round            int       `json:"round"`
	CardHeight       int       `json:"card_height"`
	Platform         string    `json:"platform,omitempty"`
}

// Date returns the publication date formatted with DateLayout.
func (r Record) Date() string {
	return r.PublishedOn.Format(DateLayout)
}

// Interactions is the sum of the three counters.
func (r Record) Interactions() int {
	return r.Likes + r.Comments + r.Reposts
}

// Mode names the kind of harvest that produced a run.
type Mode string

const (
	ModeWindow Mode = "window"
	ModeFirstN Mode = "first_n"
)

// Summary describes a finished harvest run. It accompanies the records
// whenever they are handed to a sink.
type Summary struct {
	RunID        uuid.UUID  `json:"run_id"`
	Mode         Mode       `json:"mode"`
	URL          string     `json:"url"`
	WindowStart  *time.Time `json:"window_start,omitempty"`
	WindowEnd    *time.Time `json:"window_end,omitempty"`
	Target       int        `json:"target,omitempty"`
	Rounds       int        `json:"rounds"`
	Reason       string     `json:"reason"`
	Count        int        `json:"count"`
	ScrolledPx   int        `json:"scrolled_px"`
	NodesVisited int        `json:"nodes_visited"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}
