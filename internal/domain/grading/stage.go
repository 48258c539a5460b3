package grading

import "fmt"

// Stage is the lifecycle position of one grading unit.
type Stage int

// Stages of a grading unit. Failed is terminal and reachable only from
// Requesting and Parsing.
const (
	StagePending Stage = iota
	StageRequesting
	StageParsing
	StageReconciling
	StageDone
	StageFailed
)

var stageNames = [...]string{"pending", "requesting", "parsing", "reconciling", "done", "failed"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool { return s == StageDone || s == StageFailed }

// CanTransition reports whether s may move to next.
func (s Stage) CanTransition(next Stage) bool {
	switch s {
	case StagePending:
		return next == StageRequesting
	case StageRequesting:
		return next == StageParsing || next == StageFailed
	case StageParsing:
		return next == StageReconciling || next == StageFailed
	case StageReconciling:
		return next == StageDone
	default:
		return false
	}
}

// Tracker walks a unit through its stages and rejects illegal moves.
type Tracker struct {
	stage   Stage
	history []Stage
	onMove  func(from, to Stage)
}

// NewTracker returns a tracker in StagePending. onMove may be nil.
func NewTracker(onMove func(from, to Stage)) *Tracker {
	return &Tracker{stage: StagePending, history: []Stage{StagePending}, onMove: onMove}
}

// Stage returns the current stage.
func (t *Tracker) Stage() Stage { return t.stage }

// History returns every stage visited, in order.
func (t *Tracker) History() []Stage {
	out := make([]Stage, len(t.history))
	copy(out, t.history)
	return out
}

// Move transitions to next.
func (t *Tracker) Move(next Stage) error {
	if !t.stage.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, t.stage, next)
	}
	from := t.stage
	t.stage = next
	t.history = append(t.history, next)
	if t.onMove != nil {
		t.onMove(from, next)
	}
	return nil
}

// Fail moves to StageFailed when the current stage allows it.
func (t *Tracker) Fail() error { return t.Move(StageFailed) }
