package models

const (
	SystemPrompt = "You are a helpful assistant. Use the provided context to answer the query. If the context does not contain the answer, say so."

	AnswerPromptTemplate = `Context:
%s
Query: %s`

	RefinePromptTemplate = `The original query is: %s
We have an existing answer: %s
Refine the existing answer using the following additional context. If the context is not useful, return the existing answer unchanged.
Context:
%s`

	SummarizePromptTemplate = `Summarize the following passages, keeping every detail relevant to the query "%s":
%s`
)
