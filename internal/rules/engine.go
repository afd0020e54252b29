package rules

import "sentryline/pkg/models"

// Engine tags events with matching rules at alert derivation time.
type Engine interface {
	Apply(event *models.Event) []models.AlertTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(event *models.Event) []models.AlertTag {
	return nil
}
