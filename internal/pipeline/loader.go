package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/radar-regrid/internal/domain"
)

// NamedLoader labels a BatchLoader for error messages.
type NamedLoader struct {
	Name   string
	Loader BatchLoader
}

// FanoutLoader loads every batch into each of its loaders in order. A batch
// counts as loaded only when all loaders succeed, so offsets are never
// committed for products a sink missed. Loaders must tolerate replays.
type FanoutLoader []NamedLoader

func (f FanoutLoader) LoadBatch(ctx context.Context, products []domain.RasterProduct) error {
	for _, l := range f {
		if err := l.Loader.LoadBatch(ctx, products); err != nil {
			return fmt.Errorf("load %s: %w", l.Name, err)
		}
	}
	return nil
}
