package template

import (
	"context"
	"fmt"

	"herald/internal/common"
	"herald/internal/domain/notification"
)

var _ notification.TemplateResolver = (*Resolver)(nil)

// Resolver loads templates through the external template store's read contract.
type Resolver struct {
	store notification.TemplateStore
}

// NewResolver creates a new template resolver.
func NewResolver(store notification.TemplateStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the template with the given id, or a NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, id string) (*notification.Template, error) {
	tmpl, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching template %s: %w", id, err)
	}
	if tmpl == nil {
		return nil, common.NewNotFoundError("template", id)
	}
	return tmpl, nil
}
