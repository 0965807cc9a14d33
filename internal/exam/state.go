package exam

type State string

const (
	StateIdle           State = "idle"
	StateGenerating     State = "generating"
	StateInProgress     State = "in_progress"
	StateGrading        State = "grading"
	StateCompleted      State = "completed"
	StateViewingHistory State = "viewing_history"
)

// Transient states have a generation call in flight.
func (s State) Transient() bool {
	return s == StateGenerating || s == StateGrading
}

// HasActiveAttempt reports whether an attempt is on display.
func (s State) HasActiveAttempt() bool {
	return s == StateCompleted || s == StateViewingHistory
}

type event string

const (
	evGenerate     event = "generate"
	evGenerated    event = "generated"
	evGenerateFail event = "generate_failed"
	evAnswer       event = "answer"
	evNavigate     event = "navigate"
	evSubmit       event = "submit"
	evGraded       event = "graded"
	evGradeFail    event = "grade_failed"
	evViewHistory  event = "view_history"
	evDelete       event = "delete"
	evReadings     event = "readings"
	evReset        event = "reset"
)

// transitions lists the states each event may fire from. Events that roll
// back (generate_failed) restore a snapshot instead of naming a target.
var transitions = map[event][]State{
	evGenerate:     {StateIdle, StateInProgress},
	evGenerated:    {StateGenerating},
	evGenerateFail: {StateGenerating},
	evAnswer:       {StateInProgress},
	evNavigate:     {StateInProgress},
	evSubmit:       {StateInProgress},
	evGraded:       {StateGrading},
	evGradeFail:    {StateGrading},
	evViewHistory:  {StateIdle, StateCompleted, StateViewingHistory},
	evDelete:       {StateIdle, StateCompleted, StateViewingHistory},
	evReadings:     {StateCompleted, StateViewingHistory},
	evReset:        {StateIdle, StateInProgress, StateCompleted, StateViewingHistory},
}

func allowed(ev event, from State) bool {
	for _, s := range transitions[ev] {
		if s == from {
			return true
		}
	}
	return false
}
