package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicequeue/internal/domain/track"
)

func TestDurationLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name       string
		settings   map[string]any
		track      track.Track
		wantReject bool
	}{
		{name: "within limits", settings: map[string]any{"min_minutes": 2, "max_minutes": 5}, track: track.Track{Duration: 3 * time.Minute}},
		{name: "too short", settings: map[string]any{"min_minutes": 3}, track: track.Track{Duration: 2 * time.Minute}, wantReject: true},
		{name: "too long", settings: map[string]any{"min_minutes": 1, "max_minutes": 5}, track: track.Track{Duration: 6 * time.Minute}, wantReject: true},
		{name: "exactly min", settings: map[string]any{"min_minutes": 3}, track: track.Track{Duration: 3 * time.Minute}},
		{name: "exactly max", settings: map[string]any{"max_minutes": 5}, track: track.Track{Duration: 5 * time.Minute}},
		{name: "fractional max", settings: map[string]any{"max_minutes": 2.5}, track: track.Track{Duration: 2*time.Minute + 31*time.Second}, wantReject: true},
		{name: "no max", settings: map[string]any{}, track: track.Track{Duration: 3 * time.Hour}},
		{name: "live stream", settings: map[string]any{"min_minutes": 2, "max_minutes": 5}, track: track.Track{Live: true}},
		{name: "string values", settings: map[string]any{"max_minutes": "4"}, track: track.Track{Duration: 5 * time.Minute}, wantReject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDurationLimitFilter()
			require.NoError(t, f.ValidateConfig(tt.settings))

			result := f.Check(context.Background(), Request{}, tt.track)

			if tt.wantReject {
				assert.False(t, result.Accepted)
				assert.Equal(t, CodeDurationLimit, result.Code)
			} else {
				assert.True(t, result.Accepted)
			}
		})
	}
}

func TestDurationLimitFilter_Unconfigured(t *testing.T) {
	assert.True(t, NewDurationLimitFilter().Check(context.Background(), Request{}, track.Track{}).Accepted)
}

func TestDurationLimitFilter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{name: "min and max", settings: map[string]any{"min_minutes": 2.5, "max_minutes": 5.0}},
		{name: "integers", settings: map[string]any{"min_minutes": 2, "max_minutes": 5}},
		{name: "zero max means no limit", settings: map[string]any{"min_minutes": 10, "max_minutes": 0}},
		{name: "nil settings", settings: nil},
		{name: "min greater than max", settings: map[string]any{"min_minutes": 10, "max_minutes": 5}, wantErr: true},
		{name: "negative min", settings: map[string]any{"min_minutes": -1}, wantErr: true},
		{name: "negative max", settings: map[string]any{"max_minutes": -1}, wantErr: true},
		{name: "unknown key", settings: map[string]any{"max_seconds": 30}, wantErr: true},
		{name: "not a number", settings: map[string]any{"max_minutes": "long"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDurationLimitFilter().ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
