// Package resolver maps a free-text name fragment to the ids of the
// deployments Central tracks under a matching name.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
)

// Lister is the part of the inventory client the resolver needs.
type Lister interface {
	ListDeployments(ctx context.Context, conn inventory.Connection) ([]inventory.Deployment, error)
}

// Resolution is the result of a successful listing. An empty IDs slice
// means nothing matched; that is a normal outcome, not an error.
type Resolution struct {
	Fragment string
	IDs      []string
}

// NotFound reports whether no deployment name matched the fragment.
func (r Resolution) NotFound() bool {
	return len(r.IDs) == 0
}

// DefaultListTimeout bounds the listing request when New is given none.
const DefaultListTimeout = 10 * time.Second

// Resolver matches deployment names case-insensitively by substring.
type Resolver struct {
	lister  Lister
	timeout time.Duration
}

// New creates a Resolver backed by lister. Each listing request is
// bounded by timeout; zero or negative uses DefaultListTimeout.
func New(lister Lister, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultListTimeout
	}
	return &Resolver{lister: lister, timeout: timeout}
}

// Resolve lists deployments and returns the ids of those whose name
// contains fragment, ignoring case, in listing order. Only a listing
// failure returns an error.
func (r *Resolver) Resolve(ctx context.Context, conn inventory.Connection, fragment string) (Resolution, error) {
	listCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	deployments, err := r.lister.ListDeployments(listCtx, conn)
	if err != nil {
		return Resolution{}, fmt.Errorf("deployment listing failed: %w", err)
	}
	return Resolution{
		Fragment: fragment,
		IDs:      Match(deployments, fragment),
	}, nil
}

// Match returns the ids of deployments whose lower-cased name contains
// the lower-cased fragment, preserving order.
func Match(deployments []inventory.Deployment, fragment string) []string {
	needle := strings.ToLower(fragment)
	var ids []string
	for _, d := range deployments {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
