// Package static registers a responder that returns a fixed reply. Useful for
// local development and tests where no model backend is available.
package static

import (
	"context"

	"github.com/docspace/conversation-service/internal/config"
	"github.com/docspace/conversation-service/internal/model"
	registrygenerate "github.com/docspace/conversation-service/internal/registry/generate"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrygenerate.Register(registrygenerate.Plugin{
		Name: "static",
		Loader: func(ctx context.Context) (registrygenerate.Responder, error) {
			text := "This is a canned reply."
			if cfg := config.FromContext(ctx); cfg != nil && cfg.StaticResponderText != "" {
				text = cfg.StaticResponderText
			}
			return &Responder{Text: text}, nil
		},
	})
}

// Responder returns Text for every query, citing SourceFilename when set.
type Responder struct {
	Text           string
	SourceFilename string
}

func (r *Responder) Query(_ context.Context, _ string, _ []model.Turn, _ int64) (*registrygenerate.Answer, error) {
	return &registrygenerate.Answer{Text: r.Text, SourceFilename: r.SourceFilename}, nil
}

var _ registrygenerate.Responder = (*Responder)(nil)
