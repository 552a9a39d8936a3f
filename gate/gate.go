// Package gate provides a Gate/Policy authorization checkpoint.
// The Gate is a central registry of policies; each Policy defines the
// authorization rules for one resource type (e.g. "dossier", "pec").
// The package knows nothing about domain models: U is the subject type,
// typically *models.User.
package gate

import "context"

// Gate is the central authorization checkpoint.
// U is the acting subject type; it must be comparable so a zero value
// (nil pointer, zero ID) can be rejected outright.
type Gate[U comparable] struct {
	policies map[string]Policy[U]
}

// New creates an empty Gate ready to register policies.
func New[U comparable]() *Gate[U] {
	return &Gate[U]{policies: make(map[string]Policy[U])}
}

// Register adds a policy for a resource type, replacing any existing one.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize checks whether user may perform action on resource.
// Returns ErrUnauthorized for a zero-value user or a denied action,
// ErrNoPolicyDefined when resourceType has no registered policy.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	var zero U
	if user == zero {
		return ErrUnauthorized
	}
	p, ok := g.policies[resourceType]
	if !ok {
		return ErrNoPolicyDefined
	}
	if !p.Can(ctx, user, action, resource) {
		return ErrUnauthorized
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}
