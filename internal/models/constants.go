package models

// RefusalMarker is the fixed token the generation prompt tells the model
// to lead with when the supplied context does not answer the question.
// The pipeline strips it and flags the answer as refused.
const RefusalMarker = "NO_ANSWER"

const (
	SystemPromptTemplate = `You are a document assistant. You answer questions using ONLY the context passages provided to you. Never use outside knowledge. If the context does not contain the answer, or the question is unrelated to the context, reply with exactly "` + RefusalMarker + `" followed by a short note that the uploaded documents do not cover the question.`

	AnswerPromptTemplate = `Context passages, most relevant first:
%s
Question: %s

Answer using only the context passages above. If they do not address the question, start your reply with "` + RefusalMarker + `".`

	// RefusalFallback is returned when the similarity gate (or an empty
	// index) refuses before the generator is ever called.
	RefusalFallback = "The uploaded documents do not contain information related to this question."
)
