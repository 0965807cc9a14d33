package exam

import "slices"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

type AttemptType string

const (
	AttemptExam AttemptType = "Exam"
	AttemptQuiz AttemptType = "Quiz"
)

type ExamQuestion struct {
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"` // multiple_choice only
	CorrectAnswer string       `json:"correctAnswer"`
	Topic         string       `json:"topic"`
}

// ExamResult is the graded outcome for the question at the same index.
type ExamResult struct {
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Topic         string       `json:"topic"`
	UserAnswer    string       `json:"userAnswer"` // "" means unanswered
	CorrectAnswer string       `json:"correctAnswer"`
	IsCorrect     bool         `json:"isCorrect"`
}

type Reading struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Attempt struct {
	ID             string         `json:"id"`
	SubjectID      string         `json:"subjectId"`
	SubjectName    string         `json:"subjectName"`
	Name           string         `json:"name"`
	Type           AttemptType    `json:"type"`
	Date           string         `json:"date"` // RFC3339
	ExamQuestions  []ExamQuestion `json:"examQuestions"`
	ExamResults    []ExamResult   `json:"examResults"`
	OverallScore   float64        `json:"overallScore"`
	TopicsToReview []string       `json:"topicsToReview"`
	ExtraReadings  []Reading      `json:"extraReadings"`
}

// Grading is what the generation service returns for a submitted exam.
type Grading struct {
	Results        []ExamResult `json:"results"`
	TopicsToReview []string     `json:"topicsToReview"`
}

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Clone returns a deep copy so stores and views never share backing arrays.
// Empty slices stay empty rather than becoming nil.
func (a Attempt) Clone() Attempt {
	out := a
	if a.ExamQuestions != nil {
		out.ExamQuestions = make([]ExamQuestion, len(a.ExamQuestions))
		for i, q := range a.ExamQuestions {
			out.ExamQuestions[i] = q.clone()
		}
	}
	out.ExamResults = slices.Clone(a.ExamResults)
	out.TopicsToReview = slices.Clone(a.TopicsToReview)
	out.ExtraReadings = slices.Clone(a.ExtraReadings)
	return out
}

func (q ExamQuestion) clone() ExamQuestion {
	q.Options = slices.Clone(q.Options)
	return q
}

// HasOption reports whether s is one of the question's options.
func (q ExamQuestion) HasOption(s string) bool {
	for _, o := range q.Options {
		if o == s {
			return true
		}
	}
	return false
}

// Valid checks the per-type shape of a generated question.
func (q ExamQuestion) Valid() bool {
	switch q.Type {
	case MultipleChoice:
		return len(q.Options) > 0 && q.HasOption(q.CorrectAnswer)
	case TrueFalse, ShortAnswer:
		return true
	default:
		return false
	}
}
