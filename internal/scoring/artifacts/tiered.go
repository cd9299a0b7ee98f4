package artifacts

import (
	"context"
	"errors"

	"lead_scoring_backend/internal/scoring/domain"
)

// Tiered chains stores from fastest to most durable. Reads stop at the first
// hit and back-fill the faster tiers; writes and invalidations go to all.
type Tiered struct {
	tiers []Store
}

var _ Store = (*Tiered)(nil)

// NewTiered creates a chain. Nil tiers are skipped.
func NewTiered(tiers ...Store) *Tiered {
	t := &Tiered{}
	for _, s := range tiers {
		if s != nil {
			t.tiers = append(t.tiers, s)
		}
	}
	return t
}

func (t *Tiered) Get(ctx context.Context, key Key) (*Artifact, error) {
	var errs []error
	for i, s := range t.tiers {
		a, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, faster := range t.tiers[:i] {
			_ = faster.Put(ctx, a)
		}
		return a, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNotFound
}

func (t *Tiered) Put(ctx context.Context, a *Artifact) error {
	var errs []error
	for _, s := range t.tiers {
		if err := s.Put(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate reports the largest removal count of any tier, since every
// tier holds a copy of the same artifacts.
func (t *Tiered) Invalidate(ctx context.Context, kind domain.ModelKind) (int, error) {
	var errs []error
	removed := 0
	for _, s := range t.tiers {
		n, err := s.Invalidate(ctx, kind)
		if err != nil {
			errs = append(errs, err)
		}
		if n > removed {
			removed = n
		}
	}
	return removed, errors.Join(errs...)
}

// List merges all tiers, preferring the faster tier's copy of a key.
func (t *Tiered) List(ctx context.Context) ([]*Artifact, error) {
	seen := make(map[Key]struct{})
	var out []*Artifact
	var errs []error
	for _, s := range t.tiers {
		list, err := s.List(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, a := range list {
			if _, ok := seen[a.Key()]; ok {
				continue
			}
			seen[a.Key()] = struct{}{}
			out = append(out, a)
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sortNewestFirst(out)
	return out, nil
}
