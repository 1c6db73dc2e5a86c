// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/voicequeue/internal/api/connect"
)

var (
	app    = kingpin.New("voicequeue-admincli", "voicequeue admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	sessionsCmd = app.Command("sessions", "List open sessions").Alias("list")

	statusCmd     = app.Command("status", "Get session status")
	statusSession = statusCmd.Arg("session-id", "Session ID").Required().String()

	queueCmd     = app.Command("queue", "Show the queue")
	queueSession = queueCmd.Arg("session-id", "Session ID").Required().String()
	queueLimit   = queueCmd.Flag("limit", "Number of upcoming tracks to show").Int()

	searchCmd     = app.Command("search", "Search the library or Spotify")
	searchQuery   = searchCmd.Arg("query", "Search words").Required().String()
	searchLimit   = searchCmd.Flag("limit", "Maximum results").Default("10").Int()
	searchSpotify = searchCmd.Flag("spotify", "Search Spotify instead of the library").Bool()

	enqueueCmd       = app.Command("enqueue", "Add a track or playlist")
	enqueueSession   = enqueueCmd.Arg("session-id", "Session ID").Required().String()
	enqueueQuery     = enqueueCmd.Arg("query", "Library id, playlist:<id>, or Spotify URL").Required().String()
	enqueueRequester = enqueueCmd.Flag("requester", "Requester ID").Default("admin").String()
	enqueueFront     = enqueueCmd.Flag("front", "Play next").Bool()
	enqueueShuffle   = enqueueCmd.Flag("shuffle", "Shuffle the playlist").Bool()
	enqueueLoop      = enqueueCmd.Flag("loop", "Loop the playlist").Bool()

	skipCmd     = app.Command("skip", "Skip tracks")
	skipSession = skipCmd.Arg("session-id", "Session ID").Required().String()
	skipCount   = skipCmd.Arg("count", "Number of tracks").Default("1").Int()

	loopCmd     = app.Command("loop", "Set the loop mode")
	loopSession = loopCmd.Arg("session-id", "Session ID").Required().String()
	loopMode    = loopCmd.Arg("mode", "off, track or queue").Required().Enum("off", "track", "queue")

	playlistLoopCmd     = app.Command("playlist-loop", "Toggle or set playlist looping")
	playlistLoopSession = playlistLoopCmd.Arg("session-id", "Session ID").Required().String()
	playlistLoopIndex   = playlistLoopCmd.Arg("playlist", "Playlist number").Default("1").Int()
	playlistLoopState   = playlistLoopCmd.Flag("state", "on or off (toggles when omitted)").Enum("on", "off")

	shufflePlaylistCmd     = app.Command("shuffle-playlist", "Shuffle a playlist")
	shufflePlaylistSession = shufflePlaylistCmd.Arg("session-id", "Session ID").Required().String()
	shufflePlaylistIndex   = shufflePlaylistCmd.Arg("playlist", "Playlist number").Default("1").Int()
	shufflePlaylistMode    = shufflePlaylistCmd.Flag("mode", "toggle, shuffle, unshuffle or reshuffle").Default("toggle").Enum("toggle", "shuffle", "unshuffle", "reshuffle")

	shuffleQueueCmd     = app.Command("shuffle-queue", "Toggle or set random play")
	shuffleQueueSession = shuffleQueueCmd.Arg("session-id", "Session ID").Required().String()
	shuffleQueueState   = shuffleQueueCmd.Flag("state", "on or off (toggles when omitted)").Enum("on", "off")

	stopCmd     = app.Command("stop", "Stop playback and disconnect")
	stopSession = stopCmd.Arg("session-id", "Session ID").Required().String()

	resumeCmd     = app.Command("resume", "Resume a stopped session")
	resumeSession = resumeCmd.Arg("session-id", "Session ID").Required().String()

	destroyCmd     = app.Command("destroy", "Destroy a session and its queue")
	destroySession = destroyCmd.Arg("session-id", "Session ID").Required().String()

	listenersCmd     = app.Command("listeners", "Set the listener count of a simulated room")
	listenersSession = listenersCmd.Arg("session-id", "Session ID").Required().String()
	listenersCount   = listenersCmd.Arg("count", "Listener count").Required().Int()

	watchCmd     = app.Command("watch", "Stream announcements")
	watchSession = watchCmd.Arg("session-id", "Session ID (all sessions when omitted)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	ctx := context.Background()

	switch command {
	case sessionsCmd.FullCommand():
		call(ctx, apiconnect.AdminListSessionsProcedure, nil)
	case statusCmd.FullCommand():
		call(ctx, apiconnect.AdminGetStatusProcedure, map[string]any{"session_id": *statusSession})
	case queueCmd.FullCommand():
		call(ctx, apiconnect.AdminGetQueueProcedure, map[string]any{
			"session_id": *queueSession,
			"limit":      *queueLimit,
		})
	case searchCmd.FullCommand():
		call(ctx, apiconnect.AdminSearchProcedure, map[string]any{
			"query":   *searchQuery,
			"limit":   *searchLimit,
			"spotify": *searchSpotify,
		})
	case enqueueCmd.FullCommand():
		call(ctx, apiconnect.AdminEnqueueProcedure, map[string]any{
			"session_id":   *enqueueSession,
			"query":        *enqueueQuery,
			"requester_id": *enqueueRequester,
			"front":        *enqueueFront,
			"shuffle":      *enqueueShuffle,
			"loop":         *enqueueLoop,
		})
	case skipCmd.FullCommand():
		call(ctx, apiconnect.AdminSkipProcedure, map[string]any{
			"session_id": *skipSession,
			"count":      *skipCount,
		})
	case loopCmd.FullCommand():
		call(ctx, apiconnect.AdminSetLoopProcedure, map[string]any{
			"session_id": *loopSession,
			"mode":       *loopMode,
		})
	case playlistLoopCmd.FullCommand():
		fields := map[string]any{"session_id": *playlistLoopSession, "playlist": *playlistLoopIndex}
		if *playlistLoopState != "" {
			fields["loop"] = *playlistLoopState == "on"
		}
		call(ctx, apiconnect.AdminSetPlaylistLoopProcedure, fields)
	case shufflePlaylistCmd.FullCommand():
		call(ctx, apiconnect.AdminShufflePlaylistProcedure, map[string]any{
			"session_id": *shufflePlaylistSession,
			"playlist":   *shufflePlaylistIndex,
			"mode":       *shufflePlaylistMode,
		})
	case shuffleQueueCmd.FullCommand():
		fields := map[string]any{"session_id": *shuffleQueueSession}
		if *shuffleQueueState != "" {
			fields["enabled"] = *shuffleQueueState == "on"
		}
		call(ctx, apiconnect.AdminShuffleQueueProcedure, fields)
	case stopCmd.FullCommand():
		call(ctx, apiconnect.AdminStopProcedure, map[string]any{"session_id": *stopSession})
	case resumeCmd.FullCommand():
		call(ctx, apiconnect.AdminResumeProcedure, map[string]any{"session_id": *resumeSession})
	case destroyCmd.FullCommand():
		call(ctx, apiconnect.AdminDestroyProcedure, map[string]any{"session_id": *destroySession})
	case listenersCmd.FullCommand():
		call(ctx, apiconnect.AdminSetListenersProcedure, map[string]any{
			"session_id": *listenersSession,
			"count":      *listenersCount,
		})
	case watchCmd.FullCommand():
		watch(ctx, *watchSession)
	}
}

func newRequest(fields map[string]any) *connect.Request[structpb.Struct] {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	req := connect.NewRequest(msg)
	req.Header().Set(apiconnect.AdminTokenHeader, *token)
	return req
}

func call(ctx context.Context, procedure string, fields map[string]any) {
	client := connect.NewClient[structpb.Struct, structpb.Struct](http.DefaultClient, *server+procedure)
	resp, err := client.CallUnary(ctx, newRequest(fields))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printStruct(resp.Msg)

	if ok, exists := resp.Msg.GetFields()["success"]; exists && !ok.GetBoolValue() {
		os.Exit(2)
	}
}

func watch(ctx context.Context, sessionID string) {
	fields := map[string]any{}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := connect.NewClient[structpb.Struct, structpb.Struct](http.DefaultClient, *server+apiconnect.AdminWatchProcedure)
	stream, err := client.CallServerStream(ctx, newRequest(fields))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Println("Watching announcements. Press Ctrl+C to exit.")

	for stream.Receive() {
		m := stream.Msg().GetFields()
		fmt.Printf("[%d] %s %s: %s\n",
			int64(m["sequence_no"].GetNumberValue()),
			m["session_id"].GetStringValue(),
			m["kind"].GetStringValue(),
			m["text"].GetStringValue(),
		)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func printStruct(msg *structpb.Struct) {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
