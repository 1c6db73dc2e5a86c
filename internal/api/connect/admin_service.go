package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/voicequeue/internal/app/catalog"
	"github.com/osa030/voicequeue/internal/app/notification"
	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/app/session"
	"github.com/osa030/voicequeue/internal/domain/queue"
	"github.com/osa030/voicequeue/internal/infra/config"
	"github.com/osa030/voicequeue/internal/infra/library"
)

// AdminServiceName is the fully-qualified name of the admin service.
const AdminServiceName = "voicequeue.admin.v1.AdminService"

// Admin service procedures. Requests and responses are google.protobuf.Struct
// messages.
const (
	AdminListSessionsProcedure    = "/" + AdminServiceName + "/ListSessions"
	AdminGetStatusProcedure       = "/" + AdminServiceName + "/GetStatus"
	AdminGetQueueProcedure        = "/" + AdminServiceName + "/GetQueue"
	AdminSearchProcedure          = "/" + AdminServiceName + "/Search"
	AdminEnqueueProcedure         = "/" + AdminServiceName + "/Enqueue"
	AdminSkipProcedure            = "/" + AdminServiceName + "/Skip"
	AdminSetLoopProcedure         = "/" + AdminServiceName + "/SetLoop"
	AdminSetPlaylistLoopProcedure = "/" + AdminServiceName + "/SetPlaylistLoop"
	AdminShufflePlaylistProcedure = "/" + AdminServiceName + "/ShufflePlaylist"
	AdminShuffleQueueProcedure    = "/" + AdminServiceName + "/ShuffleQueue"
	AdminStopProcedure            = "/" + AdminServiceName + "/Stop"
	AdminResumeProcedure          = "/" + AdminServiceName + "/Resume"
	AdminDestroyProcedure         = "/" + AdminServiceName + "/Destroy"
	AdminSetListenersProcedure    = "/" + AdminServiceName + "/SetListeners"
	AdminWatchProcedure           = "/" + AdminServiceName + "/Watch"
)

// Listeners changes the listener count of a simulated voice room.
type Listeners interface {
	SetListeners(sessionID string, n int) error
}

// AdminService implements the admin RPCs.
type AdminService struct {
	session       *session.Manager
	lookup        *catalog.Lookup
	notifications *notification.Manager
	listeners     Listeners // Optional
	config        *config.Config
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	sessions *session.Manager,
	lookup *catalog.Lookup,
	notifications *notification.Manager,
	listeners Listeners,
	cfg *config.Config,
) *AdminService {
	return &AdminService{
		session:       sessions,
		lookup:        lookup,
		notifications: notifications,
		listeners:     listeners,
		config:        cfg,
	}
}

type unaryFunc = func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

// NewAdminServiceHandler builds an HTTP handler serving every admin
// procedure. It returns the path to mount the handler on.
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	unary := map[string]unaryFunc{
		AdminListSessionsProcedure:    svc.ListSessions,
		AdminGetStatusProcedure:       svc.GetStatus,
		AdminGetQueueProcedure:        svc.GetQueue,
		AdminSearchProcedure:          svc.Search,
		AdminEnqueueProcedure:         svc.Enqueue,
		AdminSkipProcedure:            svc.Skip,
		AdminSetLoopProcedure:         svc.SetLoop,
		AdminSetPlaylistLoopProcedure: svc.SetPlaylistLoop,
		AdminShufflePlaylistProcedure: svc.ShufflePlaylist,
		AdminShuffleQueueProcedure:    svc.ShuffleQueue,
		AdminStopProcedure:            svc.Stop,
		AdminResumeProcedure:          svc.Resume,
		AdminDestroyProcedure:         svc.Destroy,
		AdminSetListenersProcedure:    svc.SetListeners,
	}

	mux := http.NewServeMux()
	for procedure, fn := range unary {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
	}
	mux.Handle(AdminWatchProcedure, connect.NewServerStreamHandler(AdminWatchProcedure, svc.Watch, opts...))
	return "/" + AdminServiceName + "/", mux
}

// ListSessions returns the ids of the open sessions.
func (s *AdminService) ListSessions(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	ids := s.session.Sessions()
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return respond(map[string]any{"sessions": list})
}

// GetStatus returns the status of a session.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	st, err := s.session.Status(id)
	if err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(statusToMap(st))
}

// GetQueue returns the queue of a session.
func (s *AdminService) GetQueue(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	v, err := s.session.Queue(id, intField(req.Msg, "limit", 0))
	if err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(queueToMap(v))
}

// Search searches the library, or Spotify when "spotify" is set.
func (s *AdminService) Search(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	limit := intField(req.Msg, "limit", s.config.Resolver.Match.SearchLimit)
	if limit < 1 || limit > 50 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Newf("limit must be between 1 and 50: %d", limit))
	}
	tracks, err := s.lookup.Search(ctx, stringField(req.Msg, "query"), limit, boolValue(req.Msg, "spotify"))
	if err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(map[string]any{"tracks": tracksToList(tracks)})
}

// Enqueue looks up a query and queues the track or playlist found.
func (s *AdminService) Enqueue(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	query := stringField(req.Msg, "query")
	requester := stringField(req.Msg, "requester_id")
	if requester == "" {
		requester = "admin"
	}

	item, err := s.lookup.Find(ctx, query)
	if err != nil {
		return nil, s.toConnectError(err)
	}

	if item.Playlist != nil {
		n, err := s.session.EnqueuePlaylist(ctx, id, requester, session.PlaylistRequest{
			Title:   item.Playlist.Title,
			URL:     item.Playlist.URL,
			Tracks:  item.Playlist.Tracks,
			Shuffle: boolValue(req.Msg, "shuffle"),
			Loop:    boolValue(req.Msg, "loop"),
		})
		if err != nil {
			return s.result(err)
		}
		return respond(map[string]any{
			"success":  true,
			"message":  "Playlist queued",
			"playlist": item.Playlist.Title,
			"accepted": n,
			"rejected": len(item.Playlist.Tracks) - n,
		})
	}

	enqueue := s.session.Enqueue
	if boolValue(req.Msg, "front") {
		enqueue = s.session.EnqueueFront
	}
	if err := enqueue(ctx, id, requester, *item.Track); err != nil {
		return s.result(err)
	}
	return respond(map[string]any{
		"success": true,
		"message": "Track queued",
		"track":   trackToMap(*item.Track),
	})
}

// Skip skips tracks in a session.
func (s *AdminService) Skip(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	skipped, err := s.session.Skip(ctx, id, intField(req.Msg, "count", 1))
	if err != nil {
		return s.result(err)
	}
	return respond(map[string]any{
		"success": true,
		"message": "Skipped",
		"skipped": tracksToList(skipped),
	})
}

// SetLoop sets the queue loop mode of a session.
func (s *AdminService) SetLoop(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	mode, err := queue.ParseLoopMode(stringField(req.Msg, "mode"))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.session.SetLoopMode(id, mode); err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(map[string]any{"success": true, "message": "Loop mode set to " + mode.String()})
}

// SetPlaylistLoop sets or toggles the loop flag of a queued playlist.
func (s *AdminService) SetPlaylistLoop(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	on, title, err := s.session.SetPlaylistLoop(id, intField(req.Msg, "playlist", 1), boolField(req.Msg, "loop"))
	if err != nil {
		return s.result(err)
	}
	return respond(map[string]any{"success": true, "message": "Playlist loop updated", "playlist": title, "loop": on})
}

// ShufflePlaylist shuffles, unshuffles or reshuffles a queued playlist.
func (s *AdminService) ShufflePlaylist(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	mode, err := session.ParseShuffleMode(stringField(req.Msg, "mode"))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	applied, title, err := s.session.ShufflePlaylist(id, intField(req.Msg, "playlist", 1), mode)
	if err != nil {
		return s.result(err)
	}
	return respond(map[string]any{"success": true, "message": "Playlist " + applied.String() + "d", "playlist": title})
}

// ShuffleQueue sets or toggles the queue-level random pick.
func (s *AdminService) ShuffleQueue(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	on, err := s.session.SetQueueShuffle(id, boolField(req.Msg, "enabled"))
	if err != nil {
		return s.result(err)
	}
	return respond(map[string]any{"success": true, "message": "Queue shuffle updated", "shuffle": on})
}

// Stop stops playback of a session, keeping its queue.
func (s *AdminService) Stop(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.session.Stop(ctx, id); err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(map[string]any{"success": true, "message": "Playback stopped"})
}

// Resume resumes playback of a stopped session.
func (s *AdminService) Resume(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.session.Resume(ctx, id); err != nil {
		return s.result(err)
	}
	return respond(map[string]any{"success": true, "message": "Playback resumed"})
}

// Destroy closes a session and drops its queue.
func (s *AdminService) Destroy(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.session.Destroy(ctx, id); err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(map[string]any{"success": true, "message": "Session destroyed"})
}

// SetListeners changes the listener count of a simulated room.
func (s *AdminService) SetListeners(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if s.listeners == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("rooms are not simulated"))
	}
	id, err := sessionID(req.Msg)
	if err != nil {
		return nil, err
	}
	n := intField(req.Msg, "count", -1)
	if n < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("count must be zero or more"))
	}
	if err := s.listeners.SetListeners(id, n); err != nil {
		return nil, s.toConnectError(err)
	}
	return respond(map[string]any{"success": true, "message": "Listener count updated", "listeners": n})
}

// Watch streams the announcements of one session, or of every session when
// no session_id is given, until the client disconnects.
func (s *AdminService) Watch(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	sub := &watchStream{ch: make(chan *notification.Notification, 16), done: ctx.Done()}
	subID := s.notifications.Subscribe(stringField(req.Msg, "session_id"), sub)
	defer s.notifications.Unsubscribe(subID)
	zlog.Debug().Msgf("admin: watch started: subscription_id=%s", subID)

	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msgf("admin: watch ended: subscription_id=%s", subID)
			return nil
		case n := <-sub.ch:
			msg, err := structpb.NewStruct(notificationToMap(n))
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// watchStream hands notifications to the Watch handler goroutine, which
// owns the connect stream.
type watchStream struct {
	ch   chan *notification.Notification
	done <-chan struct{}
}

func (w *watchStream) Send(n *notification.Notification) error {
	select {
	case w.ch <- n:
		return nil
	case <-w.done:
		return context.Canceled
	}
}

// result reports user errors as an unsuccessful response and everything
// else as an RPC error.
func (s *AdminService) result(err error) (*connect.Response[structpb.Struct], error) {
	var rejected *session.RejectedError
	var rangeErr *queue.RangeError
	switch {
	case errors.As(err, &rejected):
		return respond(map[string]any{"success": false, "message": s.config.GetMessage(rejected.Code), "code": rejected.Code})
	case errors.As(err, &rangeErr),
		errors.Is(err, session.ErrAlreadyInState),
		errors.Is(err, session.ErrEmptyPlaylist),
		errors.Is(err, queue.ErrNoPlaylists),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrQueueEmpty):
		return respond(map[string]any{"success": false, "message": err.Error()})
	default:
		return nil, s.toConnectError(err)
	}
}

func (s *AdminService) toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, library.ErrTrackNotFound),
		errors.Is(err, library.ErrPlaylistNotFound),
		errors.Is(err, catalog.ErrLibraryUnavailable):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrSessionExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, catalog.ErrEmptyQuery):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, catalog.ErrAlternateDisabled):
		return connect.NewError(connect.CodeUnimplemented, err)
	default:
		zlog.Error().Msgf("admin: request failed: %v", err)
		return connect.NewError(connect.CodeInternal, err)
	}
}

func respond(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
	}
	return connect.NewResponse(msg), nil
}
