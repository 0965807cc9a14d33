package exam

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DateLayout has fixed-width milliseconds so stored dates sort lexically.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Recorder receives lifecycle side effects, typically for metrics.
type Recorder interface {
	AttemptSaved(typ AttemptType)
	AttemptDeleted()
	PersistenceFailed(op string)
}

type nopRecorder struct{}

func (nopRecorder) AttemptSaved(AttemptType) {}
func (nopRecorder) AttemptDeleted()          {}
func (nopRecorder) PersistenceFailed(string) {}

type Options struct {
	Subject Subject
	// Timeout bounds every GenerationService call; 0 means no limit.
	Timeout  time.Duration
	Logger   *zap.Logger
	Recorder Recorder
	Now      func() time.Time
}

// session is the in-memory working state of one exam pass.
type session struct {
	material  string
	examName  string
	questions []ExamQuestion
	answers   map[int]string
	current   int
}

// Controller drives one exam lifecycle for one subject. It is safe for
// concurrent use; only one generate or submit call may be in flight.
type Controller struct {
	svc     GenerationService
	store   AttemptStore
	subject Subject
	timeout time.Duration
	log     *zap.Logger
	rec     Recorder
	now     func() time.Time

	mu     sync.Mutex
	state  State
	sess   session
	active *Attempt
}

func NewController(svc GenerationService, store AttemptStore, opts Options) *Controller {
	c := &Controller{
		svc:     svc,
		store:   store,
		subject: opts.Subject,
		timeout: opts.Timeout,
		log:     opts.Logger,
		rec:     opts.Recorder,
		now:     opts.Now,
		state:   StateIdle,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.rec == nil {
		c.rec = nopRecorder{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.log = c.log.With(zap.String("subject_id", c.subject.ID))
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState must be called with mu held.
func (c *Controller) setState(to State) {
	if c.state != to {
		c.log.Debug("exam state", zap.String("from", string(c.state)), zap.String("to", string(to)))
	}
	c.state = to
}

// enter checks that ev may fire now. Must be called with mu held.
func (c *Controller) enter(ev event) error {
	if c.state.Transient() {
		return ErrBusy
	}
	if !allowed(ev, c.state) {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, ev, c.state)
	}
	return nil
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Generate asks the generation service for a new exam. Any unsubmitted
// session is discarded on success and kept on failure.
func (c *Controller) Generate(ctx context.Context, material, name string, questionCount int) error {
	if strings.TrimSpace(material) == "" {
		return validationf("course material is required")
	}
	if strings.TrimSpace(name) == "" {
		return validationf("exam name is required")
	}
	if questionCount <= 0 {
		return validationf("question count must be positive, got %d", questionCount)
	}

	c.mu.Lock()
	if err := c.enter(evGenerate); err != nil {
		c.mu.Unlock()
		return err
	}
	prevState, prevSess := c.state, c.sess
	c.setState(StateGenerating)
	c.mu.Unlock()

	cctx, cancel := c.withTimeout(ctx)
	questions, err := c.svc.GenerateExam(cctx, material, questionCount)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	rollback := func() {
		c.setState(prevState)
		c.sess = prevSess
	}
	if err != nil {
		rollback()
		err = generationErr("generate exam", err)
		c.log.Warn("exam generation failed", zap.Error(err))
		return err
	}
	if len(questions) == 0 {
		rollback()
		return ErrNoQuestions
	}
	for i, q := range questions {
		if !q.Valid() {
			rollback()
			return generationErr("generate exam", fmt.Errorf("question %d is malformed", i))
		}
	}

	qs := make([]ExamQuestion, len(questions))
	for i, q := range questions {
		qs[i] = q.clone()
	}
	c.sess = session{
		material:  material,
		examName:  strings.TrimSpace(name),
		questions: qs,
		answers:   map[int]string{},
	}
	c.active = nil
	c.setState(StateInProgress)
	c.log.Info("exam generated", zap.String("exam", c.sess.examName), zap.Int("questions", len(qs)))
	return nil
}

// Answer stores the answer for a question, overwriting any earlier value.
func (c *Controller) Answer(index int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(evAnswer); err != nil {
		return err
	}
	if index < 0 || index >= len(c.sess.questions) {
		return validationf("question index %d out of range", index)
	}
	c.sess.answers[index] = value
	return nil
}

// Navigate moves the cursor by step, clamped to the question range, and
// returns the new index.
func (c *Controller) Navigate(step int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(evNavigate); err != nil {
		return 0, err
	}
	i := c.sess.current + step
	if last := len(c.sess.questions) - 1; i > last {
		i = last
	}
	if i < 0 {
		i = 0
	}
	c.sess.current = i
	return i, nil
}

// Submit grades the current session. On a grading failure the session is
// returned to in_progress with its answers intact. A persistence failure
// still leaves the completed attempt on display.
func (c *Controller) Submit(ctx context.Context) (Attempt, error) {
	c.mu.Lock()
	if err := c.enter(evSubmit); err != nil {
		c.mu.Unlock()
		return Attempt{}, err
	}
	sess := c.sess
	answers := alignAnswers(len(sess.questions), sess.answers)
	c.setState(StateGrading)
	c.mu.Unlock()

	cctx, cancel := c.withTimeout(ctx)
	graded, err := c.svc.GradeExam(cctx, sess.material, sess.questions, answers)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil && len(graded.Results) != len(sess.questions) {
		err = fmt.Errorf("got %d results for %d questions", len(graded.Results), len(sess.questions))
	}
	if err != nil {
		c.setState(StateInProgress)
		err = generationErr("grade exam", err)
		c.log.Warn("exam grading failed", zap.Error(err))
		return Attempt{}, err
	}

	results := mergeResults(sess.questions, answers, graded.Results)
	now := c.now()
	a := Attempt{
		ID:             newAttemptID(now),
		SubjectID:      c.subject.ID,
		SubjectName:    c.subject.Name,
		Name:           sess.examName,
		Type:           AttemptExam,
		Date:           now.UTC().Format(DateLayout),
		ExamQuestions:  sess.questions,
		ExamResults:    results,
		OverallScore:   OverallScore(countCorrect(results), len(results)),
		TopicsToReview: uniqueTopics(graded.TopicsToReview),
		ExtraReadings:  []Reading{},
	}
	c.active = &a
	c.sess = session{}
	c.setState(StateCompleted)

	if err := c.store.Append(ctx, a); err != nil {
		c.rec.PersistenceFailed("append")
		err = persistenceErr("save attempt", err)
		c.log.Error("attempt not saved", zap.String("attempt_id", a.ID), zap.Error(err))
		return a.Clone(), err
	}
	c.rec.AttemptSaved(AttemptExam)
	c.log.Info("exam graded", zap.String("attempt_id", a.ID), zap.Float64("score", a.OverallScore))
	return a.Clone(), nil
}

// ViewHistory loads a stored attempt into the read-only view. An unknown id
// returns the controller to idle.
func (c *Controller) ViewHistory(ctx context.Context, id string) (Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(evViewHistory); err != nil {
		return Attempt{}, err
	}
	a, err := c.store.FindByID(ctx, id)
	if err == nil && a.SubjectID != c.subject.ID {
		err = ErrNotFound
	}
	if errors.Is(err, ErrNotFound) {
		c.active = nil
		c.setState(StateIdle)
		return Attempt{}, fmt.Errorf("view %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Attempt{}, persistenceErr("find attempt", err)
	}
	if a.ExtraReadings == nil {
		a.ExtraReadings = []Reading{}
	}
	c.active = &a
	c.setState(StateViewingHistory)
	return a.Clone(), nil
}

// FetchReadings looks up readings for topic and merges them into the active
// attempt, dropping URLs already present. The merged list is persisted for
// both fresh and historical attempts.
func (c *Controller) FetchReadings(ctx context.Context, topic string) ([]Reading, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, validationf("topic is required")
	}
	c.mu.Lock()
	if !allowed(evReadings, c.state) {
		err := fmt.Errorf("%w: %s while %s", ErrInvalidState, evReadings, c.state)
		c.mu.Unlock()
		return nil, err
	}
	id := c.active.ID
	c.mu.Unlock()

	cctx, cancel := c.withTimeout(ctx)
	found, err := c.svc.FindReadings(cctx, topic)
	cancel()
	if err != nil {
		return nil, generationErr("find readings", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.ID != id {
		return nil, fmt.Errorf("%w: attempt %s is no longer active", ErrInvalidState, id)
	}
	merged, added := MergeReadings(c.active.ExtraReadings, found)
	if added == 0 {
		return append([]Reading(nil), merged...), nil
	}
	c.active.ExtraReadings = merged
	if err := c.store.UpdateExtraReadings(ctx, id, merged); err != nil {
		c.rec.PersistenceFailed("update_readings")
		err = persistenceErr("save readings", err)
		c.log.Warn("readings not saved", zap.String("attempt_id", id), zap.Error(err))
		return append([]Reading(nil), merged...), err
	}
	return append([]Reading(nil), merged...), nil
}

// DeleteAttempt removes an attempt from history. Unknown ids and attempts
// of other subjects are a no-op. Deleting the attempt on display returns the
// controller to idle.
func (c *Controller) DeleteAttempt(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(evDelete); err != nil {
		return err
	}
	a, err := c.store.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && a.SubjectID != c.subject.ID) {
		return nil
	}
	if err != nil {
		return persistenceErr("find attempt", err)
	}
	if err := c.store.DeleteByID(ctx, id); err != nil {
		c.rec.PersistenceFailed("delete")
		return persistenceErr("delete attempt", err)
	}
	c.rec.AttemptDeleted()
	if c.active != nil && c.active.ID == id {
		c.active = nil
		c.setState(StateIdle)
	}
	return nil
}

// Reset discards the session or closes the attempt on display.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(evReset); err != nil {
		return err
	}
	c.sess = session{}
	c.active = nil
	c.setState(StateIdle)
	return nil
}

// RecordQuiz stores the outcome of a flashcard quiz. It does not touch the
// exam lifecycle state but is refused while a generate or submit call is in
// flight.
func (c *Controller) RecordQuiz(ctx context.Context, name string, correct, total int, topics []string) (Attempt, error) {
	if strings.TrimSpace(name) == "" {
		return Attempt{}, validationf("quiz name is required")
	}
	if total < 0 || correct < 0 || correct > total {
		return Attempt{}, validationf("invalid quiz tally %d/%d", correct, total)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Transient() {
		return Attempt{}, ErrBusy
	}
	now := c.now()
	a := Attempt{
		ID:             newAttemptID(now),
		SubjectID:      c.subject.ID,
		SubjectName:    c.subject.Name,
		Name:           strings.TrimSpace(name),
		Type:           AttemptQuiz,
		Date:           now.UTC().Format(DateLayout),
		ExamQuestions:  []ExamQuestion{},
		ExamResults:    []ExamResult{},
		OverallScore:   OverallScore(correct, total),
		TopicsToReview: uniqueTopics(topics),
		ExtraReadings:  []Reading{},
	}
	if err := c.store.Append(ctx, a); err != nil {
		c.rec.PersistenceFailed("append")
		return a, persistenceErr("save quiz", err)
	}
	c.rec.AttemptSaved(AttemptQuiz)
	return a, nil
}

// History lists the subject's attempts of one type (all types if empty),
// newest first.
func (c *Controller) History(ctx context.Context, typ AttemptType) ([]Attempt, error) {
	list, err := c.store.ListBySubjectAndType(ctx, c.subject.ID, typ)
	if err != nil {
		return nil, persistenceErr("list attempts", err)
	}
	return list, nil
}

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type Summary struct {
	Attempts     int          `json:"attempts"`
	Exams        int          `json:"exams"`
	Quizzes      int          `json:"quizzes"`
	AverageScore float64      `json:"averageScore"`
	WeakTopics   []TopicCount `json:"weakTopics"`
}

// Summary aggregates the subject's history: average score and the topics
// most often flagged for review.
func (c *Controller) Summary(ctx context.Context) (Summary, error) {
	list, err := c.History(ctx, "")
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Attempts: len(list), WeakTopics: []TopicCount{}}
	counts := map[string]int{}
	label := map[string]string{}
	total := 0.0
	for _, a := range list {
		switch a.Type {
		case AttemptExam:
			s.Exams++
		case AttemptQuiz:
			s.Quizzes++
		}
		total += a.OverallScore
		for _, t := range uniqueTopics(a.TopicsToReview) {
			k := topicKey(t)
			if _, ok := label[k]; !ok {
				label[k] = t
			}
			counts[k]++
		}
	}
	if len(list) > 0 {
		s.AverageScore = total / float64(len(list))
	}
	for k, n := range counts {
		s.WeakTopics = append(s.WeakTopics, TopicCount{Topic: label[k], Count: n})
	}
	sort.Slice(s.WeakTopics, func(i, j int) bool {
		if s.WeakTopics[i].Count != s.WeakTopics[j].Count {
			return s.WeakTopics[i].Count > s.WeakTopics[j].Count
		}
		return s.WeakTopics[i].Topic < s.WeakTopics[j].Topic
	})
	return s, nil
}

// View is a read-only snapshot for the presentation layer.
type View struct {
	State        State          `json:"state"`
	Subject      Subject        `json:"subject"`
	ExamName     string         `json:"examName,omitempty"`
	Questions    []ExamQuestion `json:"questions,omitempty"`
	Answers      map[int]string `json:"answers,omitempty"`
	CurrentIndex int            `json:"currentIndex"`
	Attempt      *Attempt       `json:"attempt,omitempty"`
}

// Snapshot copies the current state. Correct answers are blanked while the
// exam is still being taken.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{State: c.state, Subject: c.subject}
	if c.state == StateInProgress || c.state == StateGrading {
		v.ExamName = c.sess.examName
		v.CurrentIndex = c.sess.current
		v.Questions = make([]ExamQuestion, len(c.sess.questions))
		for i, q := range c.sess.questions {
			q = q.clone()
			q.CorrectAnswer = ""
			v.Questions[i] = q
		}
		v.Answers = make(map[int]string, len(c.sess.answers))
		for k, val := range c.sess.answers {
			v.Answers[k] = val
		}
	}
	if c.active != nil && c.state.HasActiveAttempt() {
		a := c.active.Clone()
		v.Attempt = &a
	}
	return v
}

var lastAttemptMillis atomic.Int64

// newAttemptID is the millisecond timestamp of creation, bumped when needed
// so ids stay unique within the process.
func newAttemptID(now time.Time) string {
	ms := now.UnixMilli()
	for {
		last := lastAttemptMillis.Load()
		next := ms
		if next <= last {
			next = last + 1
		}
		if lastAttemptMillis.CompareAndSwap(last, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}
