package exam

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// OverallScore is 100*correct/total, or 0 when there is nothing to score.
func OverallScore(correct, total int) float64 {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct > total {
		correct = total
	}
	return 100 * float64(correct) / float64(total)
}

// DisplayScore rounds a score to one decimal place (2/3 -> 66.7).
func DisplayScore(score float64) float64 {
	return math.Round(score*10) / 10
}

func FormatScore(score float64) string {
	return strconv.FormatFloat(DisplayScore(score), 'f', 1, 64) + "%"
}

func countCorrect(results []ExamResult) int {
	n := 0
	for _, r := range results {
		if r.IsCorrect {
			n++
		}
	}
	return n
}

// alignAnswers turns the sparse answer map into a slice aligned with the
// questions; missing indices become "".
func alignAnswers(n int, answers map[int]string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = answers[i]
	}
	return out
}

// mergeResults rebuilds the results from the question set so that
// results[i] always describes questions[i]. Only correctness is taken from
// the grader. A blank answer is never correct unless the key is blank too.
func mergeResults(questions []ExamQuestion, answers []string, graded []ExamResult) []ExamResult {
	out := make([]ExamResult, len(questions))
	for i, q := range questions {
		r := ExamResult{
			Question:      q.Question,
			Type:          q.Type,
			Topic:         q.Topic,
			UserAnswer:    answers[i],
			CorrectAnswer: q.CorrectAnswer,
		}
		if i < len(graded) {
			r.IsCorrect = graded[i].IsCorrect
		}
		if strings.TrimSpace(r.UserAnswer) == "" {
			r.IsCorrect = strings.TrimSpace(r.CorrectAnswer) == ""
		}
		out[i] = r
	}
	return out
}

// topicKey folds a topic label for comparison: lower case, punctuation
// dropped, runs of whitespace collapsed. "Cell  Biology." and "cell biology"
// share a key.
func topicKey(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// uniqueTopics drops blank and repeated topics, keeping the first spelling.
func uniqueTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		k := topicKey(t)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

// MergeReadings appends incoming readings whose URL is not already present.
// It reports how many entries were added.
func MergeReadings(existing, incoming []Reading) ([]Reading, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.URL] = struct{}{}
	}
	added := 0
	for _, r := range incoming {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		existing = append(existing, r)
		added++
	}
	return existing, added
}
