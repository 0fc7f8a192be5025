package models

import "fmt"

// DocumentType identifies one of the generatable document templates.
type DocumentType string

const (
	DocPRD                DocumentType = "prd"
	DocBuildDoc           DocumentType = "buildDoc"
	DocImplementationPlan DocumentType = "implementationPlan"
	DocTaskList           DocumentType = "taskList"
	DocUISpecs            DocumentType = "uiSpecs"
	DocProjectRules       DocumentType = "projectRules"
	DocReadme             DocumentType = "readme"
)

// documentPriorities maps each document type to its queue priority.
// Higher values are serviced first; the PRD anchors everything else.
var documentPriorities = map[DocumentType]int{
	DocPRD:                10,
	DocBuildDoc:           8,
	DocImplementationPlan: 7,
	DocTaskList:           6,
	DocUISpecs:            5,
	DocProjectRules:       4,
	DocReadme:             3,
}

// AllDocumentTypes returns every known document type in descending priority order.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		DocPRD,
		DocBuildDoc,
		DocImplementationPlan,
		DocTaskList,
		DocUISpecs,
		DocProjectRules,
		DocReadme,
	}
}

// Priority returns the queue priority for a document type.
func (d DocumentType) Priority() int {
	return documentPriorities[d]
}

// Valid reports whether d is a known document type.
func (d DocumentType) Valid() bool {
	_, ok := documentPriorities[d]
	return ok
}

// ParseDocumentType converts a wire string into a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	d := DocumentType(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return d, nil
}

// ProjectData is the project configuration a caller submits. The queue
// passes it through to the prompt layer verbatim; only the cache key
// derivation inspects its fields.
type ProjectData struct {
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Idea     string            `json:"idea" yaml:"idea"`
	Template string            `json:"template,omitempty" yaml:"template,omitempty"`
	Stack    map[string]string `json:"stack,omitempty" yaml:"stack,omitempty"`
	Features []string          `json:"features,omitempty" yaml:"features,omitempty"`
}

// Source returns the template name when one was selected, otherwise the
// custom idea text. Cache keys hash this value.
func (p ProjectData) Source() string {
	if p.Template != "" {
		return p.Template
	}
	return p.Idea
}
