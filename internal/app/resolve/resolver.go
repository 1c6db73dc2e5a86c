package resolve

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// Resolver matches alternate-catalog tracks, then resolves the playable
// track through the provider chain. It implements playback.Resolver.
type Resolver struct {
	matcher *Matcher
	chain   *Chain
}

var _ playback.Resolver = (*Resolver)(nil)

// New creates a Resolver. A nil matcher fails every track that needs a match.
func New(matcher *Matcher, chain *Chain) *Resolver {
	return &Resolver{matcher: matcher, chain: chain}
}

// Resolve implements playback.Resolver.
// The returned resource carries the original track with its match attached.
func (r *Resolver) Resolve(ctx context.Context, t track.Track) (playback.Resource, error) {
	if t.NeedsMatch() {
		if r.matcher == nil {
			return playback.Resource{}, errors.Wrapf(playback.ErrMatchFailed, "no primary catalog for track %s", t.ID)
		}
		matched, err := r.matcher.Match(ctx, t)
		if err != nil {
			return playback.Resource{}, err
		}
		t = matched
	}

	res, err := r.chain.Resolve(ctx, t.Playable())
	if err != nil {
		return playback.Resource{}, err
	}
	res.Track = t
	return res, nil
}
