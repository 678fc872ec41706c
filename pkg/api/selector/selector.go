// Package selector computes the set of ads eligible for a client under
// its configured policy and picks one uniformly at random.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/clientads/adserver/pkg/api/store"
)

// Selector serves a random eligible ad for a client.
type Selector interface {
	Select(ctx context.Context, clientID, requestedType string) (*store.Ad, error)
}

// Compile-time interface check.
var _ Selector = (*selector)(nil)

type selector struct {
	log   logrus.FieldLogger
	store store.Store
	randN func(n int) int
}

// New creates a Selector backed by the given store.
func New(log logrus.FieldLogger, s store.Store) Selector {
	return &selector{
		log:   log.WithField("component", "selector"),
		store: s,
		randN: rand.IntN,
	}
}

// Select returns one eligible ad drawn uniformly at random, or nil when
// the eligible set is empty. Every call is an independent draw; there is
// no session affinity and no exclusion of previously served ads.
func (s *selector) Select(
	ctx context.Context, clientID, requestedType string,
) (*store.Ad, error) {
	cfg, err := s.store.GetConfig(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		// An unconfigured client gets the permissive default policy;
		// selection never fails just because no config was stored.
		cfg = store.DefaultClientConfig(clientID)
	} else if err != nil {
		return nil, fmt.Errorf("loading client config: %w", err)
	}

	// A stored policy allowing no types at all makes every ad
	// ineligible; the type-membership predicate can never hold.
	if len(cfg.AllowedTypes) == 0 {
		return nil, nil
	}

	// An explicitly requested type outside the policy is a hard miss,
	// never a fallback to another type.
	if requestedType != "" && !cfg.AllowedTypes.Contains(requestedType) {
		return nil, nil
	}

	enabled := true
	filter := store.AdFilter{
		ClientIDs: []string{clientID},
		Enabled:   &enabled,
	}

	if requestedType != "" {
		filter.Type = requestedType
	} else {
		filter.Types = cfg.AllowedTypes
	}

	ads, err := s.store.ListAds(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying eligible ads: %w", err)
	}

	eligible := make([]store.Ad, 0, len(ads))

	for i := range ads {
		if len(cfg.AllowedCategories) == 0 ||
			cfg.AllowedCategories.Intersects(ads[i].Categories) {
			eligible = append(eligible, ads[i])
		}
	}

	if len(eligible) == 0 {
		return nil, nil
	}

	chosen := eligible[s.randN(len(eligible))]

	s.log.WithField("client_id", clientID).
		WithField("ad_id", chosen.ID).
		WithField("eligible", len(eligible)).
		Debug("Ad selected")

	return &chosen, nil
}
