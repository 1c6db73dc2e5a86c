// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the catalog a track was resolved from.
type Source string

const (
	SourcePrimary   Source = "primary"   // Directly playable catalog
	SourceAlternate Source = "alternate" // Metadata-only catalog (needs a cross-catalog match)
	SourceMatched   Source = "matched"   // Alternate track substituted by a primary match
)

// Artist is one artist display entry.
type Artist struct {
	Name string // Display name
	URL  string // Artist page (optional)
}

// Track represents one playable unit.
// A Track is never mutated after creation; WithMatch returns a copy.
type Track struct {
	ID          string        // Stable ID within its source catalog
	Title       string        // Track title
	URL         string        // Canonical URL
	Duration    time.Duration // Track duration (zero for live streams)
	Live        bool          // Live stream without a fixed duration
	Artists     []Artist      // Artist entries, main artist first
	Source      Source        // Provenance
	RequesterID string        // User who queued the track
	AddedAt     time.Time     // Time when queued
	Match       *Track        // Cross-catalog match (nil until resolved)
}

// WithMatch returns a copy of t carrying the given cross-catalog match.
func (t Track) WithMatch(m Track) Track {
	m.Match = nil
	t.Match = &m
	t.Source = SourceMatched
	return t
}

// NeedsMatch reports whether the track must be matched before it can be played.
func (t Track) NeedsMatch() bool {
	return t.Source == SourceAlternate && t.Match == nil
}

// Playable returns the track whose URL is actually streamed.
func (t Track) Playable() Track {
	if t.Match != nil {
		return *t.Match
	}
	return t
}

// ArtistNames returns the artist display names joined by ", ".
func (t Track) ArtistNames() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// MainArtist returns the first artist name, or "" when unknown.
func (t Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// DurationString formats the duration as m:ss, or LIVE for live streams.
func (t Track) DurationString() string {
	if t.Live {
		return "LIVE"
	}
	return FormatDuration(t.Duration)
}

// FormatDuration formats d as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
