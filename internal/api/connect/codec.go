package connect

import (
	"math"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/voicequeue/internal/app/notification"
	"github.com/osa030/voicequeue/internal/app/session"
	"github.com/osa030/voicequeue/internal/domain/track"
)

var errMissingSessionID = errors.New("session_id is required")

func sessionID(msg *structpb.Struct) (string, error) {
	id := stringField(msg, "session_id")
	if id == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, errMissingSessionID)
	}
	return id, nil
}

func field(msg *structpb.Struct, key string) (*structpb.Value, bool) {
	if msg == nil {
		return nil, false
	}
	v, ok := msg.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func stringField(msg *structpb.Struct, key string) string {
	v, ok := field(msg, key)
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// intField reads a whole number, returning def when it is absent or not a
// whole number.
func intField(msg *structpb.Struct, key string, def int) int {
	v, ok := field(msg, key)
	if !ok {
		return def
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) {
		return def
	}
	return int(n.NumberValue)
}

// boolField returns nil when the field is absent.
func boolField(msg *structpb.Struct, key string) *bool {
	v, ok := field(msg, key)
	if !ok {
		return nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return nil
	}
	return &b.BoolValue
}

func boolValue(msg *structpb.Struct, key string) bool {
	b := boolField(msg, key)
	return b != nil && *b
}

func trackToMap(t track.Track) map[string]any {
	m := map[string]any{
		"id":        t.ID,
		"title":     t.Title,
		"artists":   t.ArtistNames(),
		"url":       t.URL,
		"duration":  t.DurationString(),
		"source":    string(t.Source),
		"requester": t.RequesterID,
	}
	if t.Match != nil {
		m["match"] = trackToMap(*t.Match)
	}
	return m
}

func tracksToList(tracks []track.Track) []any {
	list := make([]any, len(tracks))
	for i, t := range tracks {
		list[i] = trackToMap(t)
	}
	return list
}

func statusToMap(st session.Status) map[string]any {
	m := map[string]any{
		"session_id":       st.SessionID,
		"state":            st.State.String(),
		"loop_mode":        st.LoopMode,
		"shuffle":          st.Shuffle,
		"remaining":        st.Remaining,
		"listeners":        st.Listeners,
		"disconnect_armed": st.DisconnectArmed,
		"history":          st.History,
		"created_at":       st.CreatedAt.Format(time.RFC3339),
		"stats": map[string]any{
			"played":   st.Stats.Played,
			"skipped":  st.Stats.Skipped,
			"failed":   st.Stats.Failed,
			"faults":   st.Stats.Faults,
			"timeouts": st.Stats.Timeouts,
		},
	}
	if st.NowPlaying != nil {
		m["now_playing"] = trackToMap(*st.NowPlaying)
	}
	if st.Next != nil {
		m["next"] = trackToMap(*st.Next)
	}
	return m
}

func queueToMap(v session.QueueView) map[string]any {
	entries := make([]any, 0, len(v.Entries))
	for _, e := range v.Entries {
		switch {
		case e.Track != nil:
			entries = append(entries, map[string]any{"track": trackToMap(*e.Track)})
		case e.Playlist != nil:
			p := e.Playlist
			entries = append(entries, map[string]any{"playlist": map[string]any{
				"position": p.Position,
				"title":    p.Title,
				"url":      p.URL,
				"loop":     p.Loop,
				"shuffled": p.Shuffled,
				"total":    p.Total,
				"tracks":   tracksToList(p.Tracks),
			}})
		}
	}
	m := map[string]any{
		"entries":   entries,
		"upcoming":  tracksToList(v.Upcoming),
		"remaining": v.Remaining,
		"duration":  track.FormatDuration(v.Duration),
		"loop_mode": v.LoopMode,
		"shuffle":   v.Shuffle,
	}
	if v.NowPlaying != nil {
		m["now_playing"] = trackToMap(*v.NowPlaying)
	}
	return m
}

func notificationToMap(n *notification.Notification) map[string]any {
	return map[string]any{
		"sequence_no": float64(n.SequenceNo),
		"session_id":  n.SessionID,
		"kind":        n.Kind.String(),
		"text":        n.Text,
		"track_id":    n.Track,
		"time":        n.Time.Format(time.RFC3339),
	}
}
