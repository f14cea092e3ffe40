package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
	"trackrater/src/infra/logger"
	"trackrater/src/infra/repo"
)

var (
	adminID  = domain.Identity{ID: 1, Username: "boss", Role: domain.RoleAdmin}
	judgeA   = domain.Identity{ID: 2, Username: "anna", Role: domain.RoleJudge}
	judgeB   = domain.Identity{ID: 3, Username: "oleg", DisplayName: "Oleg B.", Role: domain.RoleJudge}
	judgeC   = domain.Identity{ID: 4, Username: "ira", Role: domain.RoleJudge}
	plainID  = domain.Identity{ID: 5, Username: "viewer", Role: domain.RoleUser}
	anonymID = domain.Anonymous
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sent struct {
	Room    ports.Room
	ConnID  string
	Event   string
	Payload any
}

// recorder is an in-memory ports.Broadcaster.
type recorder struct {
	mu    sync.Mutex
	sent  []sent
	rooms map[ports.Room]map[string]bool
}

func newRecorder() *recorder {
	return &recorder{rooms: make(map[ports.Room]map[string]bool)}
}

func (r *recorder) Emit(_ context.Context, room ports.Room, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{Room: room, Event: event, Payload: payload})
	return nil
}

func (r *recorder) EmitTo(_ context.Context, connID, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{ConnID: connID, Event: event, Payload: payload})
	return nil
}

func (r *recorder) JoinRoom(connID string, room ports.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][connID] = true
}

func (r *recorder) LeaveRoom(connID string, room ports.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], connID)
}

func (r *recorder) inRoom(connID string, room ports.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[room][connID]
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// find returns every message named event.
func (r *recorder) find(event string) []sent {
	var out []sent
	for _, s := range r.all() {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// last returns the most recent message named event.
func (r *recorder) last(t *testing.T, event string) sent {
	t.Helper()
	msgs := r.find(event)
	require.NotEmpty(t, msgs, "no %s emitted", event)
	return msgs[len(msgs)-1]
}

type testEnv struct {
	clock    *fakeClock
	store    *repo.MemoryRepository
	live     *LiveState
	out      *recorder
	gw       *Gateway
	queue    *QueueService
	playback *PlaybackService
	rating   *RatingService
	subs     *SubmissionService
	links    Links
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	log := logger.Discard()
	store := repo.NewMemoryRepository(clock.Now)
	live := NewLiveState(nil, clock.Now)
	out := newRecorder()
	links := Links{BaseURL: "https://rate.example.com"}
	gw := NewGateway(out, store, live, links, 100, log, nil)
	queue := NewQueueService(store, live, gw, clock.Now, 100, log)
	return &testEnv{
		clock:    clock,
		store:    store,
		live:     live,
		out:      out,
		gw:       gw,
		queue:    queue,
		playback: NewPlaybackService(store, live, gw, links, log),
		rating:   NewRatingService(store, live, gw, links, log),
		subs:     NewSubmissionService(store, queue, gw, clock.Now, log),
		links:    links,
	}
}

// seed stores a submission anchored at the current fake time and then
// advances the clock by a second so the next seed sorts after it.
func (e *testEnv) seed(t *testing.T, artist string, p domain.Priority, status domain.SubmissionStatus) *domain.Submission {
	t.Helper()
	now := e.clock.Now()
	sub, err := e.store.CreateSubmission(context.Background(), &domain.Submission{
		Artist:        artist,
		Title:         "track",
		Priority:      p,
		Status:        status,
		FileKey:       "key-" + artist,
		FileExt:       "mp3",
		CreatedAt:     now,
		PrioritySetAt: now,
	})
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return sub
}

func (e *testEnv) get(t *testing.T, id int64) *domain.Submission {
	t.Helper()
	sub, err := e.store.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (e *testEnv) position(t *testing.T, id int64) int {
	t.Helper()
	pos, err := e.queue.PositionOf(context.Background(), id)
	require.NoError(t, err)
	return pos
}

func (e *testEnv) join(t *testing.T, who domain.Identity, connID string) domain.RaterSlot {
	t.Helper()
	slot, err := e.rating.Join(context.Background(), who, connID)
	require.NoError(t, err)
	return slot
}
