package reasoning

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/masimlabs/masim/internal/domain"
)

//go:embed prompts/*.md
var promptFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptFS, "prompts/*.md"))

func renderPrompt(name string, data interface{}) (string, error) {
	var sb strings.Builder
	if err := promptTemplates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return sb.String(), nil
}

func formatMessages(messages []domain.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatPlans(plans []domain.PlanStep) string {
	var sb strings.Builder
	for i, p := range plans {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, p.Title, p.Description)
	}
	return sb.String()
}
