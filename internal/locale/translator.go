// Package locale resolves message keys emitted through the status
// controller and the event bus into user-facing text.
package locale

import "fmt"

// Translator resolves a message key with positional arguments.
type Translator interface {
	Translation(key string, args ...interface{}) string
}

// Keys emitted by the lifecycle core.
const (
	KeyBuildStarted        = "projectStatusController.buildStarted"
	KeyBuildRank           = "projectStatusController.buildRank"
	KeyBuildSuccess        = "projectStatusController.buildSuccess"
	KeyBuildFailed         = "projectStatusController.buildFailed"
	KeyBuildFailMissing    = "buildscripts.buildFailMissingFile"
	KeyProjectDeleted      = "projectUtil.projectDeleted"
	KeyProjectDeleteFailed = "projectUtil.projectDeleteFailed"
)

var english = map[string]string{
	KeyBuildStarted:        "Build started",
	KeyBuildRank:           "Build queued at position %d/%d",
	KeyBuildSuccess:        "Build completed successfully",
	KeyBuildFailed:         "Build failed",
	KeyBuildFailMissing:    "Build cannot start, required file %s is missing",
	KeyProjectDeleted:      "Project deleted",
	KeyProjectDeleteFailed: "Project deletion failed: %s",
}

// Catalog is a Translator backed by a message map. Unknown keys fall
// back to the key itself so a missing translation never hides an event.
type Catalog struct {
	messages map[string]string
}

// NewCatalog returns the default English catalog.
func NewCatalog() *Catalog {
	return &Catalog{messages: english}
}

// Translation implements Translator.
func (c *Catalog) Translation(key string, args ...interface{}) string {
	format, ok := c.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
