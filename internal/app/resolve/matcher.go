package resolve

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// Searcher searches the primary catalog.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// MatchConfig tunes candidate scoring.
type MatchConfig struct {
	Threshold         float64       // Minimum score in (0, 1]
	DurationTolerance time.Duration // Maximum duration difference that still counts
	SearchLimit       int           // Candidates requested per search
}

// Candidate score weights; a perfect candidate scores 1.
const (
	titleExactWeight   = 0.5
	titlePartialWeight = 0.3
	artistWeight       = 0.3
	durationWeight     = 0.2
)

// Matcher finds the primary-catalog counterpart of an alternate-catalog track.
type Matcher struct {
	searcher Searcher
	config   MatchConfig
}

// NewMatcher creates a new Matcher.
func NewMatcher(searcher Searcher, config MatchConfig) *Matcher {
	return &Matcher{searcher: searcher, config: config}
}

// Match returns t with its best primary-catalog candidate attached.
// Failures are marked with playback.ErrMatchFailed.
func (m *Matcher) Match(ctx context.Context, t track.Track) (track.Track, error) {
	query := strings.TrimSpace(t.Title + " " + t.MainArtist())
	candidates, err := m.searcher.Search(ctx, query, m.config.SearchLimit)
	if err != nil {
		return track.Track{}, errors.Mark(
			errors.Wrapf(err, "search primary catalog for %q", query),
			playback.ErrMatchFailed,
		)
	}

	var (
		best      track.Track
		bestScore float64
	)
	for _, c := range candidates {
		score := m.score(t, c)
		zlog.Debug().Msgf("resolve: match candidate: track_id=%s candidate_id=%s title=%q score=%.2f",
			t.ID, c.ID, c.Title, score)
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	if bestScore < m.config.Threshold {
		return track.Track{}, errors.WithDetailf(
			errors.Wrapf(playback.ErrMatchFailed, "no match for %q", query),
			"candidates=%d best_score=%.2f threshold=%.2f", len(candidates), bestScore, m.config.Threshold,
		)
	}

	zlog.Info().Msgf("resolve: matched track: track_id=%s match_id=%s score=%.2f", t.ID, best.ID, bestScore)
	if best.Source == "" {
		best.Source = track.SourcePrimary
	}
	return t.WithMatch(best), nil
}

// score rates how well candidate c matches the original track t.
func (m *Matcher) score(t, c track.Track) float64 {
	var score float64

	want := normalize(t.Title)
	got := normalize(c.Title)
	switch {
	case want == "" || got == "":
	case want == got:
		score += titleExactWeight
	case strings.Contains(got, want) || strings.Contains(want, got):
		score += titlePartialWeight
	}

	if artist := normalize(t.MainArtist()); artist != "" {
		if strings.Contains(normalize(c.ArtistNames()), artist) || strings.Contains(got, artist) {
			score += artistWeight
		}
	}

	if !t.Live && !c.Live && t.Duration > 0 && c.Duration > 0 {
		diff := t.Duration - c.Duration
		if diff < 0 {
			diff = -diff
		}
		if diff <= m.config.DurationTolerance {
			score += durationWeight
		}
	}

	return score
}

// normalize lowercases s and drops bracketed suffixes, featuring credits and
// punctuation, collapsing whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = stripBracketed(s)
	for _, marker := range []string{" feat. ", " feat ", " ft. ", " featuring "} {
		if i := strings.Index(s+" ", marker); i >= 0 {
			s = s[:i]
		}
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripBracketed removes (...) and [...] groups.
func stripBracketed(s string) string {
	var (
		b     strings.Builder
		depth int
	)
	for _, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
