package usecase

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackrater/src/core/domain"
)

// LiveState is the only shared mutable state of the core: the playback clock,
// the active submission pointer, the live track name and the rater slots.
// One mutex guards all of it. Methods never perform I/O while holding it and
// always hand out copies.
type LiveState struct {
	mu       sync.Mutex
	now      func() time.Time
	criteria []domain.Criterion

	trackName string
	activeID  int64
	playback  domain.Playback

	slots  map[string]*domain.RaterSlot
	byUser map[int64]string
}

// LiveSnapshot is a consistent copy of LiveState.
type LiveSnapshot struct {
	TrackName string
	ActiveID  int64
	Playback  domain.Playback
	NowMS     int64
	Raters    []domain.RaterSlot
	Criteria  []domain.Criterion
}

// HasActive reports whether a submission is active.
func (s LiveSnapshot) HasActive() bool { return s.ActiveID > 0 }

// KickTarget selects a slot by account id or by rater id. The account id wins
// when both match different slots.
type KickTarget struct {
	UserID  int64
	RaterID string
}

// NewLiveState creates an empty state. now defaults to time.Now.
func NewLiveState(criteria []domain.Criterion, now func() time.Time) *LiveState {
	if now == nil {
		now = time.Now
	}
	if len(criteria) == 0 {
		criteria = domain.DefaultCriteria
	}
	return &LiveState{
		now:      now,
		criteria: slices.Clone(criteria),
		playback: domain.ResetPlayback(now().UnixMilli()),
		slots:    make(map[string]*domain.RaterSlot),
		byUser:   make(map[int64]string),
	}
}

// Criteria returns the configured scoring axes.
func (l *LiveState) Criteria() []domain.Criterion {
	return slices.Clone(l.criteria)
}

// NowMS is the server clock in unix milliseconds.
func (l *LiveState) NowMS() int64 {
	return l.now().UnixMilli()
}

// Snapshot copies the whole state under the lock.
func (l *LiveState) Snapshot() LiveSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LiveSnapshot{
		TrackName: l.trackName,
		ActiveID:  l.activeID,
		Playback:  l.playback,
		NowMS:     l.NowMS(),
		Raters:    l.orderedLocked(),
		Criteria:  slices.Clone(l.criteria),
	}
}

// ActiveID returns the active submission id, or 0.
func (l *LiveState) ActiveID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeID
}

// Join binds a slot to the identity. A second join by the same identity
// returns the existing slot and only refreshes its connection.
func (l *LiveState) Join(who domain.Identity, connID string) (domain.RaterSlot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rid, ok := l.byUser[who.ID]; ok {
		slot := l.slots[rid]
		if connID != "" {
			slot.ConnID = connID
		}
		return slot.Clone(), false
	}

	rid := l.newRaterIDLocked()
	slot := &domain.RaterSlot{
		RaterID:     rid,
		UserID:      who.ID,
		DisplayName: who.Name(),
		Order:       len(l.slots),
		Scores:      domain.ZeroScores(l.criteria),
		ConnID:      connID,
	}
	l.slots[rid] = slot
	l.byUser[who.ID] = rid
	return slot.Clone(), true
}

// SlotOf returns the identity's slot, if joined.
func (l *LiveState) SlotOf(userID int64) (domain.RaterSlot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rid, ok := l.byUser[userID]
	if !ok {
		return domain.RaterSlot{}, false
	}
	return l.slots[rid].Clone(), true
}

// Rebind points a joined identity's slot at a new connection.
func (l *LiveState) Rebind(userID int64, connID string) (domain.RaterSlot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rid, ok := l.byUser[userID]
	if !ok {
		return domain.RaterSlot{}, false
	}
	l.slots[rid].ConnID = connID
	return l.slots[rid].Clone(), true
}

// Leave removes the identity's slot and compacts the order of the rest.
func (l *LiveState) Leave(userID int64) (domain.RaterSlot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rid, ok := l.byUser[userID]
	if !ok {
		return domain.RaterSlot{}, false
	}
	return l.removeLocked(rid), true
}

// Kick removes the slot matching target.
func (l *LiveState) Kick(target KickTarget) (domain.RaterSlot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if target.UserID > 0 {
		if rid, ok := l.byUser[target.UserID]; ok {
			return l.removeLocked(rid), true
		}
	}
	if target.RaterID != "" {
		if _, ok := l.slots[target.RaterID]; ok {
			return l.removeLocked(target.RaterID), true
		}
	}
	return domain.RaterSlot{}, false
}

// SetScore updates one criterion on the caller's own slot. raterID, when
// given, must name the caller's slot.
func (l *LiveState) SetScore(userID int64, raterID, criterion string, value float64) (domain.RaterSlot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rid, ok := l.byUser[userID]
	if !ok {
		return domain.RaterSlot{}, domain.ErrNotJoined
	}
	if raterID != "" && raterID != rid {
		return domain.RaterSlot{}, domain.NewForbiddenError("rater slot belongs to another judge")
	}
	if !l.hasCriterion(criterion) {
		return domain.RaterSlot{}, domain.NewValidationError("criterion_key", "unknown criterion")
	}
	slot := l.slots[rid]
	slot.Scores[criterion] = value
	return slot.Clone(), nil
}

// RenameRater changes a slot's display name.
func (l *LiveState) RenameRater(raterID, name string) (domain.RaterSlot, bool) {
	name = strings.TrimSpace(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[raterID]
	if !ok {
		return domain.RaterSlot{}, false
	}
	if name != "" {
		slot.DisplayName = name
	}
	return slot.Clone(), true
}

// SetTrackName replaces the live track name.
func (l *LiveState) SetTrackName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trackName = strings.TrimSpace(name)
}

// Activate makes id the active submission and restarts the clock.
func (l *LiveState) Activate(id int64, trackName string, autoplay bool) domain.Playback {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeID = id
	l.trackName = trackName
	l.playback = domain.StartPlayback(autoplay, l.NowMS())
	return l.playback
}

// ApplyPlayback runs a clock transition on the active track. durationMS is the
// soft seek bound read by the caller before calling in.
func (l *LiveState) ApplyPlayback(action domain.PlaybackAction, targetMS, durationMS int64) (domain.Playback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeID == 0 {
		return l.playback, domain.ErrNoActiveTrack
	}
	next, err := l.playback.Apply(action, l.NowMS(), targetMS, durationMS)
	if err != nil {
		return l.playback, err
	}
	l.playback = next
	return next, nil
}

// ClearActiveIf clears the active pointer and the clock when id is active.
// The track name is cleared too when clearName is set.
func (l *LiveState) ClearActiveIf(id int64, clearName bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id == 0 || l.activeID != id {
		return false
	}
	l.activeID = 0
	l.playback = domain.ResetPlayback(l.NowMS())
	if clearName {
		l.trackName = ""
	}
	return true
}

// Reset zeroes every slot's scores and clears the track name, the active
// pointer and the clock. It returns the previously active submission id.
func (l *LiveState) Reset() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.activeID
	l.trackName = ""
	l.activeID = 0
	l.playback = domain.ResetPlayback(l.NowMS())
	for _, s := range l.slots {
		s.Scores = domain.ZeroScores(l.criteria)
	}
	return prev
}

func (l *LiveState) removeLocked(rid string) domain.RaterSlot {
	slot := l.slots[rid]
	delete(l.slots, rid)
	delete(l.byUser, slot.UserID)
	for i, s := range l.orderedPtrsLocked() {
		s.Order = i
	}
	return slot.Clone()
}

func (l *LiveState) orderedPtrsLocked() []*domain.RaterSlot {
	out := make([]*domain.RaterSlot, 0, len(l.slots))
	for _, s := range l.slots {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *domain.RaterSlot) int { return a.Order - b.Order })
	return out
}

func (l *LiveState) orderedLocked() []domain.RaterSlot {
	ptrs := l.orderedPtrsLocked()
	out := make([]domain.RaterSlot, len(ptrs))
	for i, s := range ptrs {
		out[i] = s.Clone()
	}
	return out
}

func (l *LiveState) newRaterIDLocked() string {
	for {
		rid := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, taken := l.slots[rid]; !taken {
			return rid
		}
	}
}

func (l *LiveState) hasCriterion(key string) bool {
	for _, c := range l.criteria {
		if c.Key == key {
			return true
		}
	}
	return false
}
