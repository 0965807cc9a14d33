package genai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

// scriptedModel replies with canned text and records the prompts it saw.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	delay   time.Duration
	prompts []string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt string
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				prompt += tc.Text
			}
		}
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	err, delay := m.err, m.delay
	reply := ""
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveGeneration(op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op+":"+outcome)
}

const examReply = "Here is your exam:\n```json\n" + `{"questions":[
 {"question":"Where does photosynthesis happen?","type":"multiple_choice","options":["Mitochondria","Chloroplast","Nucleus"],"correctAnswer":"Chloroplast","topic":"Cells"},
 {"question":"Plants release oxygen.","type":"true_false","correctAnswer":"true","topic":"Photosynthesis"},
 {"question":"Name the green pigment.","type":"short_answer","correctAnswer":"Chlorophyll","topic":"Pigments"}
]}` + "\n```"

func TestGenerateExam(t *testing.T) {
	model := &scriptedModel{replies: []string{examReply}}
	obs := &recordingObserver{}
	svc := New(model, Options{Observer: obs})

	qs, err := svc.GenerateExam(context.Background(), "Photosynthesis basics...", 3)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, exam.MultipleChoice, qs[0].Type)
	assert.Equal(t, []string{"Mitochondria", "Chloroplast", "Nucleus"}, qs[0].Options)
	assert.Equal(t, "True", qs[1].CorrectAnswer, "true/false answers are normalized")
	assert.Equal(t, "Pigments", qs[2].Topic)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "exactly 3 exam questions")
	assert.Contains(t, model.prompts[0], "Photosynthesis basics...")
	assert.Equal(t, []string{"generate_exam:ok"}, obs.calls)
}

func TestGenerateExamRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":          "I cannot help with that.",
		"broken json":       `{"questions":[{"question":`,
		"unknown type":      `{"questions":[{"question":"q","type":"essay","correctAnswer":"a","topic":"t"}]}`,
		"answer not option": `{"questions":[{"question":"q","type":"multiple_choice","options":["a","b"],"correctAnswer":"c","topic":"t"}]}`,
		"one option":        `{"questions":[{"question":"q","type":"multiple_choice","options":["a"],"correctAnswer":"a","topic":"t"}]}`,
		"missing topic":     `{"questions":[{"question":"q","type":"short_answer","correctAnswer":"a"}]}`,
		"bad true_false":    `{"questions":[{"question":"q","type":"true_false","correctAnswer":"maybe","topic":"t"}]}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			svc := New(&scriptedModel{replies: []string{reply}}, Options{})
			_, err := svc.GenerateExam(context.Background(), "material", 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, exam.ErrGeneration)
		})
	}
}

func TestGenerateExamEmptyList(t *testing.T) {
	svc := New(&scriptedModel{replies: []string{`{"questions":[]}`}}, Options{})
	qs, err := svc.GenerateExam(context.Background(), "material", 3)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestModelErrorIsGenerationFailure(t *testing.T) {
	obs := &recordingObserver{}
	svc := New(&scriptedModel{err: errors.New("401 unauthorized")}, Options{Observer: obs})
	_, err := svc.FindReadings(context.Background(), "Cells")
	assert.ErrorIs(t, err, exam.ErrGeneration)
	assert.NotErrorIs(t, err, exam.ErrGenerationTimeout)
	assert.Equal(t, []string{"find_readings:error"}, obs.calls)
}

func TestTimeoutClassified(t *testing.T) {
	obs := &recordingObserver{}
	svc := New(&scriptedModel{delay: time.Second}, Options{Observer: obs})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.GenerateExam(ctx, "material", 3)
	assert.ErrorIs(t, err, exam.ErrGenerationTimeout)
	assert.ErrorIs(t, err, exam.ErrGeneration)
	assert.Equal(t, []string{"generate_exam:timeout"}, obs.calls)
}

func gradingQuestions() []exam.ExamQuestion {
	return []exam.ExamQuestion{
		{Question: "q1", Type: exam.ShortAnswer, CorrectAnswer: "a1", Topic: "T1"},
		{Question: "q2", Type: exam.TrueFalse, CorrectAnswer: "True", Topic: "T2"},
		{Question: "q3", Type: exam.MultipleChoice, Options: []string{"x", "y"}, CorrectAnswer: "y", Topic: "T3"},
	}
}

func TestGradeExam(t *testing.T) {
	reply := `{"results":[{"index":2,"isCorrect":false},{"index":0,"isCorrect":true},{"index":1,"isCorrect":true}],"topicsToReview":["T3"]}`
	model := &scriptedModel{replies: []string{reply}}
	svc := New(model, Options{})

	g, err := svc.GradeExam(context.Background(), "material", gradingQuestions(), []string{"a1", "True", ""})
	require.NoError(t, err)
	require.Len(t, g.Results, 3)
	for i, q := range gradingQuestions() {
		assert.Equal(t, q.Question, g.Results[i].Question)
		assert.Equal(t, q.Topic, g.Results[i].Topic)
	}
	assert.True(t, g.Results[0].IsCorrect)
	assert.True(t, g.Results[1].IsCorrect)
	assert.False(t, g.Results[2].IsCorrect)
	assert.Equal(t, "", g.Results[2].UserAnswer)
	assert.Equal(t, []string{"T3"}, g.TopicsToReview)
	assert.Contains(t, model.prompts[0], `"userAnswer": ""`)
}

func TestGradeExamWithoutIndices(t *testing.T) {
	reply := `{"results":[{"isCorrect":true},{"isCorrect":false},{"isCorrect":true}]}`
	svc := New(&scriptedModel{replies: []string{reply}}, Options{})
	g, err := svc.GradeExam(context.Background(), "m", gradingQuestions(), []string{"a1", "False", "y"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, []bool{g.Results[0].IsCorrect, g.Results[1].IsCorrect, g.Results[2].IsCorrect})
	assert.NotNil(t, g.TopicsToReview)
}

func TestGradeExamMismatchedResults(t *testing.T) {
	for name, reply := range map[string]string{
		"too few":       `{"results":[{"isCorrect":true}]}`,
		"duplicate idx": `{"results":[{"index":0,"isCorrect":true},{"index":0,"isCorrect":true},{"index":1,"isCorrect":true}]}`,
		"out of range":  `{"results":[{"index":0,"isCorrect":true},{"index":1,"isCorrect":true},{"index":7,"isCorrect":true}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := New(&scriptedModel{replies: []string{reply}}, Options{})
			_, err := svc.GradeExam(context.Background(), "m", gradingQuestions(), []string{"", "", ""})
			assert.ErrorIs(t, err, exam.ErrGeneration)
		})
	}
}

func TestGradeExamAnswerCount(t *testing.T) {
	model := &scriptedModel{}
	svc := New(model, Options{})
	_, err := svc.GradeExam(context.Background(), "m", gradingQuestions(), []string{"a"})
	assert.ErrorIs(t, err, exam.ErrValidation)
	assert.Empty(t, model.prompts, "no model call on bad input")
}

func TestFindReadingsFiltersEntries(t *testing.T) {
	reply := `{"readings":[
		{"title":"Khan Academy","url":"https://www.khanacademy.org/photosynthesis"},
		{"title":"","url":"https://example.org/untitled"},
		{"title":"FTP mirror","url":"ftp://example.org/file"},
		{"title":"Relative","url":"/docs/page"},
		{"title":"Britannica","url":"http://britannica.com/science/photosynthesis"}
	]}`
	svc := New(&scriptedModel{replies: []string{reply}}, Options{})
	rs, err := svc.FindReadings(context.Background(), "Photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, []exam.Reading{
		{Title: "Khan Academy", URL: "https://www.khanacademy.org/photosynthesis"},
		{Title: "Britannica", URL: "http://britannica.com/science/photosynthesis"},
	}, rs)
}

func TestFindReadingsEmpty(t *testing.T) {
	svc := New(&scriptedModel{replies: []string{`{"readings":[]}`}}, Options{})
	rs, err := svc.FindReadings(context.Background(), "Obscure")
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestGenerateNotes(t *testing.T) {
	svc := New(&scriptedModel{replies: []string{"```markdown\n# Photosynthesis\n- **Chlorophyll** absorbs light\n```"}}, Options{})
	notes, err := svc.GenerateNotes(context.Background(), "material")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(notes, "# Photosynthesis"))
	assert.False(t, strings.Contains(notes, "```"))

	_, err = svc.GenerateNotes(context.Background(), " ")
	assert.ErrorIs(t, err, exam.ErrValidation)
}

func TestGenerateFlashcards(t *testing.T) {
	svc := New(&scriptedModel{replies: []string{
		`{"flashcards":[{"front":"Chlorophyll","back":"Green pigment"},{"front":"Stomata","back":"Leaf pores"}]}`,
		`{"flashcards":[{"front":"","back":"missing front"}]}`,
	}}, Options{})

	cards, err := svc.GenerateFlashcards(context.Background(), "material", 2)
	require.NoError(t, err)
	assert.Equal(t, []Flashcard{{Front: "Chlorophyll", Back: "Green pigment"}, {Front: "Stomata", Back: "Leaf pores"}}, cards)

	_, err = svc.GenerateFlashcards(context.Background(), "material", 1)
	assert.ErrorIs(t, err, exam.ErrGeneration)

	_, err = svc.GenerateFlashcards(context.Background(), "material", 0)
	assert.ErrorIs(t, err, exam.ErrValidation)
}

func TestMaterialClipped(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"questions":[]}`}}
	svc := New(model, Options{MaxMaterialRunes: 10})
	_, err := svc.GenerateExam(context.Background(), strings.Repeat("é", 50), 1)
	require.NoError(t, err)
	assert.Contains(t, model.prompts[0], strings.Repeat("é", 10)+"\n")
	assert.NotContains(t, model.prompts[0], strings.Repeat("é", 11))
}

func TestRateLimiterHonorsContext(t *testing.T) {
	svc := New(&scriptedModel{replies: []string{`{"readings":[]}`, `{"readings":[]}`}}, Options{RateLimit: 0.001, Burst: 1})
	_, err := svc.FindReadings(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.FindReadings(ctx, "b")
	assert.ErrorIs(t, err, exam.ErrGeneration)
}

func TestExtractJSON(t *testing.T) {
	for in, want := range map[string]string{
		`{"a":1}`:                       `{"a":1}`,
		"```json\n{\"a\":1}\n```":       `{"a":1}`,
		"Sure!\n```\n{\"a\":1}\n```\nx": `{"a":1}`,
		"prefix {\"a\":{\"b\":2}} tail": `{"a":{"b":2}}`,
	} {
		got, err := extractJSON(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := extractJSON("no braces")
	assert.ErrorIs(t, err, errNoJSON)
}

func TestFactoryBYOK(t *testing.T) {
	var keys []string
	f := NewFactory(ProviderConfig{Provider: ProviderOpenAI, APIKey: "platform-key", Model: "m"}, Options{})
	f.newModel = func(cfg ProviderConfig) (llms.Model, error) {
		keys = append(keys, cfg.APIKey)
		if cfg.Model != "m" {
			t.Fatalf("model not carried over: %+v", cfg)
		}
		return &scriptedModel{}, nil
	}
	_, err := f.Default()
	require.NoError(t, err)
	_, err = f.ForKey("user-key")
	require.NoError(t, err)
	assert.Equal(t, []string{"platform-key", "user-key"}, keys)
}

func TestNewModelValidation(t *testing.T) {
	_, err := NewModel(ProviderConfig{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = NewModel(ProviderConfig{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)

	m, err := NewModel(ProviderConfig{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, m)
	_, err = NewModel(ProviderConfig{Provider: ProviderAnthropic})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	// base url and client are openai settings; anthropic ignores them
	m, err = NewModel(ProviderConfig{Provider: ProviderAnthropic, APIKey: "k", BaseURL: "http://localhost:1", HTTPClient: http.DefaultClient})
	require.NoError(t, err)
	assert.NotNil(t, m)
	m, err = NewModel(ProviderConfig{Provider: ProviderOpenAI, APIKey: "k", BaseURL: "http://localhost:1/v1"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
