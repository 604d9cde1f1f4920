package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

var (
	summarizePrompt = prompts.NewPromptTemplate(
		`Summarize the following text concisely and accurately:
"{{.input_text}}"
Summary:`,
		[]string{"input_text"},
	)

	combinePrompt = prompts.NewPromptTemplate(
		`The following are summaries of consecutive parts of one document.
Combine them into a single concise and accurate summary of the whole document:
"{{.input_text}}"
Summary:`,
		[]string{"input_text"},
	)

	answerPrompt = prompts.NewPromptTemplate(
		`Given the following context, answer the question. If the answer is not in the context, state that.

Context: "{{.context}}"

Question: "{{.question}}"

Answer:`,
		[]string{"context", "question"},
	)

	learningPathPrompt = prompts.NewPromptTemplate(
		`Generate a step-by-step learning path for the topic "{{.input_text}}". Provide at least 5 distinct steps, each on a new line, starting with a bullet point. Use markdown bolding for key terms or step titles.
Learning Path:`,
		[]string{"input_text"},
	)
)

// SummarizePrompt renders the summarization prompt for one chunk of text.
func SummarizePrompt(text string) (string, error) {
	return render(summarizePrompt, map[string]any{"input_text": text})
}

// CombinePrompt renders the prompt that merges partial summaries.
func CombinePrompt(partials string) (string, error) {
	return render(combinePrompt, map[string]any{"input_text": partials})
}

// AnswerPrompt renders the question-answering prompt.
func AnswerPrompt(context, question string) (string, error) {
	return render(answerPrompt, map[string]any{"context": context, "question": question})
}

// LearningPathPrompt renders the learning path prompt.
func LearningPathPrompt(topic string) (string, error) {
	return render(learningPathPrompt, map[string]any{"input_text": topic})
}

func render(tmpl prompts.PromptTemplate, values map[string]any) (string, error) {
	out, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out, nil
}
