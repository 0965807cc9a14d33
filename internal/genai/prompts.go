package genai

const examPrompt = `You are an exam writer. Using only the course material below, write exactly %d exam questions.
Mix the types "multiple_choice", "true_false" and "short_answer".
Rules:
- multiple_choice questions have 3 to 5 "options" and "correctAnswer" must be copied verbatim from "options".
- true_false questions have "correctAnswer" equal to "True" or "False" and no options.
- every question has a short "topic" label naming the concept it tests.
Respond with JSON only, in this shape:
{"questions":[{"question":"...","type":"multiple_choice","options":["..."],"correctAnswer":"...","topic":"..."}]}

Course material:
"""
%s
"""`

const gradePrompt = `You are grading a student's exam against the course material below.
For each question decide if the student's answer is correct. Accept answers that are
semantically equivalent to the correct answer. An empty answer is incorrect.
Then list the topics the student should review.
Respond with JSON only, with exactly one result per question in the same order:
{"results":[{"index":0,"isCorrect":true}],"topicsToReview":["..."]}

Course material:
"""
%s
"""

Questions and answers (JSON):
%s`

const readingsPrompt = `Suggest up to 5 reputable, freely accessible web resources for studying the topic %q.
Respond with JSON only:
{"readings":[{"title":"...","url":"https://..."}]}`

const notesPrompt = `Write concise study notes in Markdown for the course material below.
Use headings for each major concept, bullet points for key facts, and bold key terms.

Course material:
"""
%s
"""`

const flashcardsPrompt = `Create exactly %d flashcards from the course material below.
Each card has a short "front" (term or question) and a "back" (definition or answer).
Respond with JSON only:
{"flashcards":[{"front":"...","back":"..."}]}

Course material:
"""
%s
"""`
