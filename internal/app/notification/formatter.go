package notification

import (
	"strconv"
	"strings"
	"time"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
	"github.com/osa030/voicequeue/internal/infra/config"
)

// Formatter renders playback messages from the configured templates.
type Formatter struct {
	messages config.MessagesConfig
}

// NewFormatter creates a new Formatter.
func NewFormatter(messages config.MessagesConfig) *Formatter {
	return &Formatter{messages: messages}
}

// Format renders msg as announcement text.
func (f *Formatter) Format(msg playback.Message) string {
	switch msg.Kind {
	case playback.MessageNowPlaying:
		lines := []string{f.render(f.messages.NowPlaying, msg)}
		switch {
		case msg.NextRandom:
			lines = append(lines, f.render(f.messages.NextRandom, msg))
		case msg.Next != nil:
			lines = append(lines, f.render(f.messages.NextTrack, playback.Message{Track: msg.Next}))
		case msg.Timeout > 0:
			lines = append(lines, f.render(f.messages.LeavingFooter, msg))
		}
		return strings.Join(lines, "\n")
	case playback.MessageSkipped:
		return f.render(f.messages.Skipped, msg)
	case playback.MessageQueueEmpty:
		return f.withFooter(f.messages.QueueEmpty, msg)
	case playback.MessageRoomEmpty:
		return f.withFooter(f.messages.RoomEmpty, msg)
	case playback.MessageDisconnected:
		return f.render(f.messages.Disconnected, msg)
	case playback.MessageMatchFailed:
		return f.render(f.messages.MatchFailed, msg)
	case playback.MessageResolveFailed:
		return f.render(f.messages.ResolveFailed, msg)
	case playback.MessagePlaybackError:
		return f.render(f.messages.PlaybackError, msg)
	case playback.MessageUnplayable:
		return f.withFooter(f.messages.Unplayable, msg)
	default:
		return ""
	}
}

func (f *Formatter) withFooter(text string, msg playback.Message) string {
	if msg.Timeout <= 0 {
		return f.render(text, msg)
	}
	return f.render(text, msg) + "\n" + f.render(f.messages.LeavingFooter, msg)
}

// render substitutes the placeholders of tmpl.
func (f *Formatter) render(tmpl string, msg playback.Message) string {
	var t track.Track
	if msg.Track != nil {
		t = *msg.Track
	}
	errText := ""
	if msg.Err != nil {
		errText = msg.Err.Error()
	}
	r := strings.NewReplacer(
		"{title}", t.Title,
		"{artists}", t.ArtistNames(),
		"{duration}", t.DurationString(),
		"{url}", t.URL,
		"{requester}", t.RequesterID,
		"{count}", strconv.Itoa(len(msg.Tracks)),
		"{minutes}", minutes(msg.Timeout),
		"{position}", track.FormatDuration(msg.Position),
		"{error}", errText,
	)
	return r.Replace(tmpl)
}

// minutes formats d in whole minutes, rounding up so a pending timer never
// reads as zero.
func minutes(d time.Duration) string {
	m := int((d + time.Minute - 1) / time.Minute)
	return strconv.Itoa(m)
}
