package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/docsmith-ai/docsmith/pkg/models"
)

// Per-document-type system instructions. The user message carries the
// project configuration; these set the document's shape and tone.
var systemPrompts = map[models.DocumentType]string{
	models.DocPRD:                "You are a senior product manager. Write a complete Product Requirements Document in Markdown: overview, goals, target users, user stories, functional requirements, and success metrics.",
	models.DocBuildDoc:           "You are a staff engineer. Write a build document in Markdown describing architecture, chosen technologies, project structure, and how the pieces fit together.",
	models.DocImplementationPlan: "You are a tech lead. Write a step-by-step implementation plan in Markdown, ordered by dependency, with a milestone per phase.",
	models.DocTaskList:           "You are a project planner. Write a granular task list in Markdown with checkboxes, grouped by feature area, each task small enough for a single sitting.",
	models.DocUISpecs:            "You are a product designer. Write UI specifications in Markdown: screen inventory, layout per screen, component states, and interaction notes.",
	models.DocProjectRules:       "You are an engineering manager. Write project conventions in Markdown: code style, branching, review rules, and directory layout guidance.",
	models.DocReadme:             "You are an open-source maintainer. Write a README in Markdown: what the project does, quick start, configuration, and contribution notes.",
}

const userTemplate = `Generate the document for this project.

{{if .Name}}Project name: {{.Name}}
{{end}}{{if .Template}}Based on the "{{.Template}}" starter template.
{{else}}Project idea: {{.Idea}}
{{end}}{{if .Stack}}Technology stack:
{{range .StackLines}}- {{.}}
{{end}}{{end}}{{if .Features}}Requested features:
{{range .Features}}- {{.}}
{{end}}{{end}}Respond with the document content only, no preamble.`

var userTmpl = template.Must(template.New("user").Parse(userTemplate))

type templateData struct {
	models.ProjectData
	StackLines []string
}

// Build renders the chat messages for one document generation request.
// Failures are local to the item that triggered them.
func Build(docType models.DocumentType, data models.ProjectData) ([]models.ChatMessage, error) {
	system, ok := systemPrompts[docType]
	if !ok {
		return nil, fmt.Errorf("no prompt for document type %q", docType)
	}

	var buf strings.Builder
	if err := userTmpl.Execute(&buf, templateData{
		ProjectData: data,
		StackLines:  stackLines(data.Stack),
	}); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	return []models.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: buf.String()},
	}, nil
}

// stackLines flattens the stack selection into sorted "layer: choice"
// lines so prompts are deterministic for identical configurations.
func stackLines(stack map[string]string) []string {
	lines := make([]string, 0, len(stack))
	for layer, choice := range stack {
		lines = append(lines, fmt.Sprintf("%s: %s", layer, choice))
	}
	sort.Strings(lines)
	return lines
}
