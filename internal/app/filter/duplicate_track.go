package filter

import (
	"context"
	"regexp"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// DuplicateTrackConfig represents the configuration for DuplicateTrackFilter.
type DuplicateTrackConfig struct {
	// ExactOnly compares track IDs only; other versions of a song pass.
	ExactOnly bool `yaml:"exact_only" mapstructure:"exact_only"`
}

// DuplicateTrackFilter rejects a track that is already playing or queued.
// A track matches when its ID equals the queued ID or the ID of the queued
// track's primary match. Unless exact_only is set, another version of the
// same song (remaster, edit, live take) by the same main artist also
// matches. Covers by another artist and remixes never do.
type DuplicateTrackFilter struct {
	config DuplicateTrackConfig
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already queued (other versions included); covers are allowed"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{CodeDuplicateTrack}
}

func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	var config DuplicateTrackConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("duplicate track filter config: %+v", config)
	return nil
}

func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request, requested track.Track) Result {
	var key string
	if !f.config.ExactOnly {
		key = songKey(requested)
	}

	for _, queued := range req.Upcoming {
		if sameID(queued, requested) {
			return Reject(CodeDuplicateTrack)
		}
		if key != "" && (songKey(queued) == key || (queued.Match != nil && songKey(*queued.Match) == key)) {
			return Reject(CodeDuplicateTrack)
		}
	}
	return Accept()
}

// sameID compares the requested track and its match against a queued track
// and its match.
func sameID(queued, requested track.Track) bool {
	ids := []string{queued.ID}
	if queued.Match != nil {
		ids = append(ids, queued.Match.ID)
	}
	for _, id := range ids {
		if id == requested.ID || (requested.Match != nil && id == requested.Match.ID) {
			return true
		}
	}
	return false
}

// songKey identifies a song across its versions: the normalized title and
// the main artist. Tracks without an artist have no key.
func songKey(t track.Track) string {
	artist := strings.ToLower(strings.TrimSpace(t.MainArtist()))
	if artist == "" {
		return ""
	}
	return normalizeTrackName(t.Title) + "\x00" + artist
}

// versionSuffixes strip edition markers from a lowercased title.
// Remix and mix annotations are kept: a remix is a different recording.
var versionSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`\s*[(\[][^)\]]*remaster[^)\]]*[)\]]`),           // "(Remastered 2023)", "[2009 Remaster]"
	regexp.MustCompile(`\s*-?\s*(\d{4}\s+)?remaster(ed)?(\s+version)?`), // "- 2011 Remaster", "- Remastered Version"
	regexp.MustCompile(`\s*[(\[][^)\]]*(version|edit)[)\]]`),            // "(Single Version)", "(Radio Edit)"
	regexp.MustCompile(`\s*[(\[]live[)\]]`),                             // "(Live)"
	regexp.MustCompile(`\s*-\s*(live|radio\s+edit|single\s+version)\b.*$`),
	regexp.MustCompile(`\s*[(\[]official\s+(music\s+)?(video|audio)[)\]]`),
}

var spaces = regexp.MustCompile(`\s+`)

// normalizeTrackName lowercases a title and removes version markers.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)
	for _, pattern := range versionSuffixes {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	normalized = spaces.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
