package generate

import (
	"context"
	"fmt"

	"github.com/docspace/conversation-service/internal/model"
)

// Answer is a generated reply plus the source document the responder cited,
// if it cited one.
type Answer struct {
	Text string
	// SourceFilename is the filename of the document the responder drew
	// from, or empty when the answer did not use a document.
	SourceFilename string
}

// Responder produces an assistant reply for a user question given the
// conversation history leading up to it.
type Responder interface {
	// Query generates a reply. History is ordered root-to-parent and does
	// not include the question itself.
	Query(ctx context.Context, question string, history []model.Turn, spaceID int64) (*Answer, error)
}

// Loader creates a Responder from config carried in the context.
type Loader func(ctx context.Context) (Responder, error)

// Plugin represents a responder plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a responder plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered responder plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named responder plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown responder %q; valid: %v", name, Names())
}
