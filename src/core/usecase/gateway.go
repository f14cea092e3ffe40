package usecase

import (
	"context"
	"log/slog"
	"strconv"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
)

// Event names emitted to real-time clients.
const (
	EventQueueState       = "queue_state"
	EventPlaybackState    = "playback_state"
	EventInitialState     = "initial_state"
	EventRatingJoined     = "rating_joined"
	EventRatingLeft       = "rating_left"
	EventKicked           = "kicked"
	EventKickResult       = "kick_result"
	EventSliderUpdated    = "slider_updated"
	EventRaterAdded       = "rater_added"
	EventRaterRemoved     = "rater_removed"
	EventRaterRenamed     = "rater_name_changed"
	EventRatersPresence   = "raters_presence_updated"
	EventTrackNameChanged = "track_name_changed"
	EventLiveTrackChanged = "live_track_changed"
	EventEvaluationResult = "evaluation_result"
	EventStateReset       = "state_reset"
)

// Gateway fans state changes out to rooms. Every method is fire-and-forget:
// failures are logged and observed, never returned, because the state change
// that triggered the broadcast has already committed.
type Gateway struct {
	out      ports.Broadcaster
	mirrors  []ports.Publisher
	observer ports.BroadcastObserver
	store    ports.SubmissionRepository
	live     *LiveState
	links    Links
	limit    int
	log      *slog.Logger
}

// NewGateway wires the transport. mirrors and observer may be empty.
func NewGateway(out ports.Broadcaster, store ports.SubmissionRepository, live *LiveState, links Links, queueLimit int, log *slog.Logger, observer ports.BroadcastObserver, mirrors ...ports.Publisher) *Gateway {
	if queueLimit <= 0 {
		queueLimit = domain.DefaultQueueViewLimit
	}
	return &Gateway{
		out:      out,
		mirrors:  mirrors,
		observer: observer,
		store:    store,
		live:     live,
		links:    links,
		limit:    queueLimit,
		log:      log,
	}
}

// Emit sends one event to a room and to every mirror.
func (g *Gateway) Emit(ctx context.Context, room ports.Room, event string, payload any) {
	err := g.out.Emit(ctx, room, event, payload)
	g.observe(room, event, err)
	if err != nil {
		g.log.Warn("broadcast failed", "room", room, "event", event, "error", err)
	}
	for _, m := range g.mirrors {
		if err := m.Publish(ctx, room, event, payload); err != nil {
			g.log.Warn("broadcast mirror failed", "room", room, "event", event, "error", err)
		}
	}
}

// EmitTo sends one event to a single connection.
func (g *Gateway) EmitTo(ctx context.Context, connID, event string, payload any) {
	if connID == "" {
		return
	}
	err := g.out.EmitTo(ctx, connID, event, payload)
	g.observe("conn", event, err)
	if err != nil {
		g.log.Warn("direct emit failed", "conn_id", connID, "event", event, "error", err)
	}
}

// JoinRoom adds a connection to a room.
func (g *Gateway) JoinRoom(connID string, room ports.Room) {
	if connID != "" {
		g.out.JoinRoom(connID, room)
	}
}

// LeaveRoom removes a connection from a room.
func (g *Gateway) LeaveRoom(connID string, room ports.Room) {
	if connID != "" {
		g.out.LeaveRoom(connID, room)
	}
}

// QueueState pushes the queue to the panel and public rooms.
func (g *Gateway) QueueState(ctx context.Context) {
	view, err := buildQueueView(ctx, g.store, g.limit)
	if err != nil {
		g.log.Warn("failed to build queue_state", "error", err)
		return
	}
	g.Emit(ctx, ports.RoomPanel, EventQueueState, view)
	g.Emit(ctx, ports.RoomPublic, EventQueueState, view)
}

// PlaybackState pushes the clock to joined raters and panel observers.
func (g *Gateway) PlaybackState(ctx context.Context) {
	view, err := buildPlaybackView(ctx, g.live, g.store, g.links)
	if err != nil {
		g.log.Warn("failed to build playback_state", "error", err)
		return
	}
	g.Emit(ctx, ports.RoomRaters, EventPlaybackState, view)
	g.Emit(ctx, ports.RoomPanel, EventPlaybackState, view)
}

// PanelState pushes initial_state and the presence list to the panel.
func (g *Gateway) PanelState(ctx context.Context) {
	snap := g.live.Snapshot()
	g.Emit(ctx, ports.RoomPanel, EventInitialState, buildPanelView(snap))
	g.Emit(ctx, ports.RoomPanel, EventRatersPresence, presenceView(snap.Raters))
}

// SendQueueState answers one connection's request for the queue.
func (g *Gateway) SendQueueState(ctx context.Context, connID string) {
	view, err := buildQueueView(ctx, g.store, g.limit)
	if err != nil {
		g.log.Warn("failed to build queue_state", "error", err)
		return
	}
	g.EmitTo(ctx, connID, EventQueueState, view)
}

// SendPlaybackState answers one connection's request for the clock.
func (g *Gateway) SendPlaybackState(ctx context.Context, connID string) {
	view, err := buildPlaybackView(ctx, g.live, g.store, g.links)
	if err != nil {
		g.log.Warn("failed to build playback_state", "error", err)
		return
	}
	g.EmitTo(ctx, connID, EventPlaybackState, view)
}

// SendPanelState answers one connection's request for the panel.
func (g *Gateway) SendPanelState(ctx context.Context, connID string) {
	g.EmitTo(ctx, connID, EventInitialState, buildPanelView(g.live.Snapshot()))
}

func (g *Gateway) observe(room ports.Room, event string, err error) {
	if g.observer != nil {
		g.observer.ObserveBroadcast(room, event, err)
	}
}

// RaterPresence is one entry of raters_presence_updated.
type RaterPresence struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	RaterID  string `json:"rater_id"`
}

func presenceView(slots []domain.RaterSlot) map[string]any {
	out := make([]RaterPresence, 0, len(slots))
	for _, s := range slots {
		out = append(out, RaterPresence{UserID: strconv.FormatInt(s.UserID, 10), Username: s.DisplayName, RaterID: s.RaterID})
	}
	return map[string]any{"raters": out}
}
