package session

import (
	"time"

	"github.com/workoutwise/formcheck/internal/duration"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/monitoring"
	"github.com/workoutwise/formcheck/internal/numeric"
	"github.com/workoutwise/formcheck/internal/placement"
)

// Outcome says what happened to one frame.
type Outcome string

const (
	// OutcomeObserved frames passed the confidence gate and voted.
	OutcomeObserved Outcome = "observed"
	// OutcomeLowConfidence frames were classified but cast no vote.
	OutcomeLowConfidence Outcome = "low_confidence"
	// OutcomeNoPose frames had no person in them.
	OutcomeNoPose Outcome = "no_pose"
	// OutcomeFeatureError frames had unusable landmarks.
	OutcomeFeatureError Outcome = "feature_error"
	// OutcomeClassifierError frames could not be classified.
	OutcomeClassifierError Outcome = "classifier_error"
	// OutcomeRejected frames arrived after the session finished.
	OutcomeRejected Outcome = "rejected"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{
	OutcomeObserved, OutcomeLowConfidence, OutcomeNoPose,
	OutcomeFeatureError, OutcomeClassifierError, OutcomeRejected,
}

// Skipped reports whether the frame contributed nothing to the session.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeObserved, OutcomeLowConfidence:
		return false
	default:
		return true
	}
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Index      int               `json:"frame"`
	Outcome    Outcome           `json:"outcome"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
	Label      string            `json:"label,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Events     []exercise.Event  `json:"events,omitempty"`
	Placement  *placement.Sample `json:"placement,omitempty"`
}

func (r *FrameResult) fail(o Outcome, err error) {
	r.Outcome = o
	r.Err = err
	r.Error = err.Error()
}

// Diagnostics aggregates frame outcomes over a session.
type Diagnostics struct {
	Frames          int             `json:"frames"`
	Outcomes        map[Outcome]int `json:"outcomes"`
	PlacementErrors int             `json:"placement_errors,omitempty"`
}

func newDiagnostics() Diagnostics {
	return Diagnostics{Outcomes: make(map[Outcome]int)}
}

// Skipped is the number of frames that contributed nothing.
func (d Diagnostics) Skipped() int {
	n := 0
	for o, c := range d.Outcomes {
		if o.Skipped() {
			n += c
		}
	}
	return n
}

func (d *Diagnostics) record(r FrameResult) {
	d.Frames++
	d.Outcomes[r.Outcome]++
}

func (d Diagnostics) clone() Diagnostics {
	out := Diagnostics{
		Frames:          d.Frames,
		Outcomes:        make(map[Outcome]int, len(d.Outcomes)),
		PlacementErrors: d.PlacementErrors,
	}
	for o, c := range d.Outcomes {
		out.Outcomes[o] = c
	}
	return out
}

// Summary is the session output, either live so far or final.
type Summary struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id,omitempty"`
	Exercise   exercise.Kind `json:"exercise"`
	Mode       Mode          `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`

	RepCount         int                 `json:"rep_count"`
	FormStatus       string              `json:"form_status,omitempty"`
	Stage            string              `json:"stage,omitempty"`
	LastProbability  float64             `json:"last_probability,omitempty"`
	FootStatus       placement.Placement `json:"foot_status,omitempty"`
	KneeStatus       placement.Placement `json:"knee_status,omitempty"`
	CorrectSeconds   int                 `json:"correct_seconds"`
	IncorrectSeconds int                 `json:"incorrect_seconds"`
	VideoSeconds     float64             `json:"video_seconds,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`
}

// Final reports whether the summary came from Finish.
func (s Summary) Final() bool { return s.FinishedAt != nil }

// TimelinePoint is one processed frame as retained for charts.
type TimelinePoint struct {
	Frame      int     `json:"frame"`
	Seconds    float64 `json:"seconds"`
	Outcome    Outcome `json:"outcome"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Status     string  `json:"status,omitempty"`
	Reps       int     `json:"reps"`
}

// timeline keeps the most recent limit points; limit 0 keeps all.
type timeline struct {
	limit int
	buf   []TimelinePoint
	head  int
}

func newTimeline(limit int) *timeline {
	return &timeline{limit: limit}
}

func (t *timeline) add(p TimelinePoint) {
	if t.limit == 0 || len(t.buf) < t.limit {
		t.buf = append(t.buf, p)
		return
	}
	t.buf[t.head] = p
	t.head = (t.head + 1) % t.limit
}

func (t *timeline) points() []TimelinePoint {
	out := make([]TimelinePoint, 0, len(t.buf))
	out = append(out, t.buf[t.head:]...)
	out = append(out, t.buf[:t.head]...)
	return out
}

func checkFPS(fps float64) error {
	_, err := duration.VideoDuration(0, fps)
	return err
}

func (b *base) logSkip(r FrameResult) {
	monitoring.Logf("session %s: frame %d skipped (%s): %v", b.id, r.Index, r.Outcome, r.Err)
}

// record folds a finished frame into the diagnostics and the timeline.
func (b *base) record(r FrameResult, status string, reps int) {
	b.diag.record(r)
	b.timeline.add(TimelinePoint{
		Frame:      r.Index,
		Seconds:    b.elapsed(b.cfg.Clock.Now()),
		Outcome:    r.Outcome,
		Label:      r.Label,
		Confidence: r.Confidence,
		Status:     status,
		Reps:       reps,
	})
}

// rejected answers frames sent after Finish.
func (b *base) rejected() FrameResult {
	r := FrameResult{Index: b.frames}
	r.fail(OutcomeRejected, b.checkOpen())
	b.diag.record(r)
	return r
}

// videoSeconds is the batch video length from the declared or processed
// frame count.
func (b *base) videoSeconds() float64 {
	frames := b.cfg.FrameCount
	if frames == 0 {
		frames = b.frames
	}
	d, err := duration.VideoDuration(frames, b.cfg.FPS)
	if err != nil {
		return 0
	}
	return d
}

// seconds rounds a duration in seconds half up for reporting.
func seconds(v float64) int {
	return numeric.RoundHalfUpInt(v)
}
