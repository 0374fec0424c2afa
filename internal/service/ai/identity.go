package ai

import "context"

// IdentityEnricher returns its input unchanged. It stands in for a
// translator when none is configured.
type IdentityEnricher struct{}

func (IdentityEnricher) Enrich(_ context.Context, text, _ string) (string, error) {
	return text, nil
}
