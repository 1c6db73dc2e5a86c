package filter

import (
	"context"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/track"
	"github.com/osa030/voicequeue/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain of every enabled filter, ordered by name.
func NewChainFromConfig(filters map[string]config.FilterConfig) (*Chain, error) {
	chain := NewChain()
	for _, name := range slices.Sorted(maps.Keys(filters)) {
		fc := filters[name]
		if !fc.Enabled {
			continue
		}
		f, ok := New(name)
		if !ok {
			return nil, errors.Newf("unknown filter: %s (known: %v)", name, Names())
		}
		if err := f.ValidateConfig(fc.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("registered filter: name=%s codes=%v", name, f.ReturnCodes())
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
func (c *Chain) Execute(ctx context.Context, req Request, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, req, t)
		if !result.Accepted {
			zlog.Debug().Msgf("filter rejected track: filter=%s code=%s track_id=%s session_id=%s",
				f.Name(), result.Code, t.ID, req.SessionID)
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
