package tutor

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"

	"github.com/prep-work/backend/internal/model"
)

// FallbackSystemMessage is used when an assignment has no system message stored.
const FallbackSystemMessage = "No system message found for this assignment."

//go:embed prompts/tutor.txt
var promptFS embed.FS

var (
	loadOnce   sync.Once
	loadErr    error
	promptTmpl *template.Template
)

// PromptData holds template data for the tutor system prompt.
type PromptData struct {
	SystemMessage string
	Goal          string
	Text          string
	Difficulty    model.Difficulty
	Position      int
	Total         int
	Metadata      string
}

func loadTemplate() error {
	loadOnce.Do(func() {
		content, err := promptFS.ReadFile("prompts/tutor.txt")
		if err != nil {
			loadErr = fmt.Errorf("read prompt template: %w", err)
			return
		}
		promptTmpl, loadErr = template.New("tutor").Parse(string(content))
	})
	return loadErr
}

// BuildSystemPrompt interpolates the assignment's base system message and the
// question's goal, text, difficulty, position, and metadata into the tutor
// system prompt. position is 1-based.
func BuildSystemPrompt(base string, q model.Question, position, total int) (string, error) {
	if err := loadTemplate(); err != nil {
		return "", err
	}
	if base == "" {
		base = FallbackSystemMessage
	}

	data := PromptData{
		SystemMessage: base,
		Goal:          q.Goal,
		Text:          q.Text,
		Difficulty:    q.Difficulty,
		Position:      position,
		Total:         total,
		Metadata:      q.Metadata,
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt template: %w", err)
	}
	return buf.String(), nil
}
