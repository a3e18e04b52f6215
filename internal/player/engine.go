// Package player implements the playback state engine: a single
// mutex-guarded PlayerState mutated only through the Engine's operation
// set. All operations are synchronous and atomic with respect to each
// other; invalid input (out-of-range indices, unknown IDs) is silently
// ignored rather than raised, since this state is UI-adjacent.
package player

import (
	"math/rand"
	"sync"

	"tonewiki/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultVolume is the initial volume for a fresh engine.
	DefaultVolume = 0.8

	// restartThreshold is how far into a track PlayPrevious restarts it
	// instead of skipping back, in seconds.
	restartThreshold = 3.0
)

// Engine owns the player state and notifies listeners on every change.
type Engine struct {
	mu        sync.RWMutex
	state     models.PlayerState
	listeners []chan models.PlayerState
	logger    *logrus.Logger

	// onVisibility is invoked (outside the state lock) whenever the
	// IsVisible flag changes, so the host UI layer can mirror the
	// "player active" indicator without the engine knowing about it.
	onVisibility func(visible bool)

	// randIntn is swappable for deterministic shuffle tests.
	randIntn func(n int) int
}

// NewEngine creates an engine with default state: empty playlist, volume
// 0.8, repeat off, variant A.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		state: models.PlayerState{
			Playlist:      []models.MediaTrack{},
			Volume:        DefaultVolume,
			RepeatMode:    models.RepeatNone,
			ActiveVariant: models.VariantA,
		},
		logger:   logger,
		randIntn: rand.Intn,
	}
}

// ApplyPersisted overlays a previously persisted state subset onto the
// engine. Transport, time and A/B state are intentionally not part of the
// subset and stay at their defaults.
func (e *Engine) ApplyPersisted(ps *models.PersistedState) {
	if ps == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Volume = clampVolume(ps.Volume)
	e.state.IsMuted = ps.IsMuted
	if ps.RepeatMode != "" {
		e.state.RepeatMode = ps.RepeatMode
	}
	e.state.IsShuffled = ps.IsShuffled
	if ps.Playlist != nil {
		e.state.Playlist = append([]models.MediaTrack{}, ps.Playlist...)
	}
	if ps.CurrentIndex >= 0 && ps.CurrentIndex < len(e.state.Playlist) {
		e.state.CurrentIndex = ps.CurrentIndex
	}
	if ps.CurrentTrack != nil {
		track := *ps.CurrentTrack
		e.state.CurrentTrack = &track
	}
	e.notifyLocked()
}

// State returns a copy of the current player state.
func (e *Engine) State() models.PlayerState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshotLocked(&e.state)
}

// Persisted returns the durable subset of the current state.
func (e *Engine) Persisted() models.PersistedState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ps := models.PersistedState{
		Volume:       e.state.Volume,
		IsMuted:      e.state.IsMuted,
		RepeatMode:   e.state.RepeatMode,
		IsShuffled:   e.state.IsShuffled,
		Playlist:     append([]models.MediaTrack{}, e.state.Playlist...),
		CurrentIndex: e.state.CurrentIndex,
	}
	if e.state.CurrentTrack != nil {
		track := *e.state.CurrentTrack
		ps.CurrentTrack = &track
	}
	return ps
}

// SetVisibilityObserver registers the callback mirrored on IsVisible
// changes. Only one observer is supported; passing nil clears it.
func (e *Engine) SetVisibilityObserver(fn func(visible bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onVisibility = fn
}

// Subscribe adds a listener for state changes. The channel is buffered;
// slow listeners are dropped rather than blocking the engine.
func (e *Engine) Subscribe() <-chan models.PlayerState {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan models.PlayerState, 16)
	e.listeners = append(e.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (e *Engine) Unsubscribe(ch <-chan models.PlayerState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, listener := range e.listeners {
		if listener == ch {
			close(listener)
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			break
		}
	}
}

// SetPlaylist replaces the playlist wholesale. It does not touch the
// current index, track or transport state; callers follow up with
// SetCurrentIndex or PlayTrack.
func (e *Engine) SetPlaylist(tracks []models.MediaTrack) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Playlist = append([]models.MediaTrack{}, tracks...)
	e.notifyLocked()
}

// QueuePosition says where AddToPlaylist inserts a track.
type QueuePosition string

const (
	PositionEnd  QueuePosition = "end"
	PositionNext QueuePosition = "next"
)

// AddToPlaylist appends a track, or inserts it immediately after the
// current index when position is PositionNext. Current playback is not
// affected.
func (e *Engine) AddToPlaylist(track models.MediaTrack, position QueuePosition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.addToPlaylistLocked(track, position)
	e.notifyLocked()
}

func (e *Engine) addToPlaylistLocked(track models.MediaTrack, position QueuePosition) {
	if position == PositionNext {
		at := e.state.CurrentIndex + 1
		if at > len(e.state.Playlist) {
			at = len(e.state.Playlist)
		}
		playlist := append([]models.MediaTrack{}, e.state.Playlist[:at]...)
		playlist = append(playlist, track)
		playlist = append(playlist, e.state.Playlist[at:]...)
		e.state.Playlist = playlist
		return
	}
	e.state.Playlist = append(e.state.Playlist, track)
}

// RemoveFromPlaylist removes the first track with the given ID. Indices
// before the current track shift the current index down so it keeps
// pointing at the same logical track. Removing the current track itself
// re-points playback at the track now occupying the same position
// (clamped to the new last index); an emptied playlist stops playback.
func (e *Engine) RemoveFromPlaylist(trackID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removedIdx := -1
	for i, t := range e.state.Playlist {
		if t.ID == trackID {
			removedIdx = i
			break
		}
	}
	if removedIdx == -1 {
		return
	}

	wasCurrent := e.state.CurrentTrack != nil && e.state.CurrentTrack.ID == trackID

	e.state.Playlist = append(e.state.Playlist[:removedIdx], e.state.Playlist[removedIdx+1:]...)

	if removedIdx < e.state.CurrentIndex {
		e.state.CurrentIndex--
	}
	if e.state.CurrentIndex < 0 {
		e.state.CurrentIndex = 0
	}

	if wasCurrent {
		if len(e.state.Playlist) == 0 {
			e.state.CurrentIndex = 0
			e.state.CurrentTrack = nil
			e.state.IsPlaying = false
			e.state.CurrentTime = 0
		} else {
			if e.state.CurrentIndex >= len(e.state.Playlist) {
				e.state.CurrentIndex = len(e.state.Playlist) - 1
			}
			track := e.state.Playlist[e.state.CurrentIndex]
			e.state.CurrentTrack = &track
			e.state.CurrentTime = 0
		}
	}
	e.notifyLocked()
}

// ClearPlaylist empties the playlist and resets playback.
func (e *Engine) ClearPlaylist() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Playlist = []models.MediaTrack{}
	e.state.CurrentIndex = 0
	e.state.CurrentTrack = nil
	e.state.IsPlaying = false
	e.notifyLocked()
}

// SetCurrentIndex jumps to a playlist position. Out-of-range indices are
// ignored.
func (e *Engine) SetCurrentIndex(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.state.Playlist) {
		return
	}
	e.state.CurrentIndex = index
	track := e.state.Playlist[index]
	e.state.CurrentTrack = &track
	e.notifyLocked()
}

// SetIsPlaying sets the transport flag directly. Used by the surface
// adapter to revert optimistic play intent after a failed play attempt.
func (e *Engine) SetIsPlaying(playing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.IsPlaying = playing
	e.notifyLocked()
}

// SetVolume stores the volume clamped to [0, 1].
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Volume = clampVolume(volume)
	e.notifyLocked()
}

// SetIsMuted toggles mute without altering the stored volume.
func (e *Engine) SetIsMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.IsMuted = muted
	e.notifyLocked()
}

// SetCurrentTime records the playback position reported by the surface.
func (e *Engine) SetCurrentTime(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.CurrentTime = seconds
	e.notifyLocked()
}

// SetDuration records the track duration reported by the surface.
func (e *Engine) SetDuration(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Duration = seconds
	e.notifyLocked()
}

// SetIsVisible stores the visibility flag and mirrors it to the registered
// visibility observer. The observer runs outside the state lock so it may
// call back into the engine.
func (e *Engine) SetIsVisible(visible bool) {
	e.mu.Lock()
	e.state.IsVisible = visible
	observer := e.onVisibility
	e.notifyLocked()
	e.mu.Unlock()

	if observer != nil {
		observer(visible)
	}
}

// SetIsMini toggles compact player mode.
func (e *Engine) SetIsMini(mini bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.IsMini = mini
	e.notifyLocked()
}

// SetRepeatMode sets the repeat behavior.
func (e *Engine) SetRepeatMode(mode models.RepeatMode) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.RepeatMode = mode
	e.notifyLocked()
}

// ToggleShuffle flips shuffle mode.
func (e *Engine) ToggleShuffle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.IsShuffled = !e.state.IsShuffled
	e.notifyLocked()
}

// PlayTrack starts a track. With replacePlaylist the queue becomes just
// this track; callers should route through RequestPlay first so an active
// listener gets the queue-conflict choice before their queue is discarded.
// Without it, an already-queued track (same ID) is jumped to instead of
// duplicated, and a new track is appended and jumped to.
func (e *Engine) PlayTrack(track models.MediaTrack, replacePlaylist bool) {
	e.mu.Lock()
	e.playTrackLocked(track, replacePlaylist)
	observer := e.onVisibility
	e.notifyLocked()
	e.mu.Unlock()

	if observer != nil {
		observer(true)
	}
}

func (e *Engine) playTrackLocked(track models.MediaTrack, replacePlaylist bool) {
	if replacePlaylist {
		e.state.Playlist = []models.MediaTrack{track}
		e.state.CurrentIndex = 0
	} else {
		existing := -1
		for i, t := range e.state.Playlist {
			if t.ID == track.ID {
				existing = i
				break
			}
		}
		if existing == -1 {
			e.state.Playlist = append(e.state.Playlist, track)
			e.state.CurrentIndex = len(e.state.Playlist) - 1
		} else {
			e.state.CurrentIndex = existing
			track = e.state.Playlist[existing]
		}
	}

	current := track
	e.state.CurrentTrack = &current
	e.state.IsPlaying = true
	e.state.IsVisible = true
	e.state.CurrentTime = 0
}

// PlayNext advances to the next track, honoring repeat and shuffle. With
// repeat-one the current track restarts in place. At the end of the
// playlist repeat-all wraps to the start while repeat-none stops playback
// without moving. Shuffle overrides the computed index with a random
// different track whenever the playlist has more than one entry.
func (e *Engine) PlayNext() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.state.Playlist) == 0 {
		return
	}

	if e.state.RepeatMode == models.RepeatOne {
		e.state.CurrentTime = 0
		e.state.IsPlaying = true
		e.notifyLocked()
		return
	}

	nextIndex := e.state.CurrentIndex + 1
	if nextIndex >= len(e.state.Playlist) {
		if e.state.RepeatMode == models.RepeatAll {
			nextIndex = 0
		} else {
			e.state.IsPlaying = false
			e.notifyLocked()
			return
		}
	}

	if e.state.IsShuffled && len(e.state.Playlist) > 1 {
		nextIndex = e.randIntn(len(e.state.Playlist))
		if nextIndex == e.state.CurrentIndex {
			nextIndex = (nextIndex + 1) % len(e.state.Playlist)
		}
	}

	e.state.CurrentIndex = nextIndex
	track := e.state.Playlist[nextIndex]
	e.state.CurrentTrack = &track
	e.state.CurrentTime = 0
	e.state.IsPlaying = true
	e.notifyLocked()
}

// PlayPrevious restarts the current track when more than three seconds in,
// otherwise steps back one track, wrapping from the first to the last.
func (e *Engine) PlayPrevious() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.state.Playlist) == 0 {
		return
	}

	if e.state.CurrentTime > restartThreshold {
		e.state.CurrentTime = 0
		e.notifyLocked()
		return
	}

	prevIndex := len(e.state.Playlist) - 1
	if e.state.CurrentIndex > 0 {
		prevIndex = e.state.CurrentIndex - 1
	}

	e.state.CurrentIndex = prevIndex
	track := e.state.Playlist[prevIndex]
	e.state.CurrentTrack = &track
	e.state.CurrentTime = 0
	e.state.IsPlaying = true
	e.notifyLocked()
}

// TogglePlayPause flips the transport flag. No-op when nothing is loaded.
func (e *Engine) TogglePlayPause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.CurrentTrack == nil {
		return
	}
	e.state.IsPlaying = !e.state.IsPlaying
	e.notifyLocked()
}

// EnterABMode switches the engine into comparison mode on the given group,
// always starting on variant A.
func (e *Engine) EnterABMode(group *models.ABTrackGroup) {
	if group == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.enterABModeLocked(group)
	e.notifyLocked()
}

func (e *Engine) enterABModeLocked(group *models.ABTrackGroup) {
	e.state.IsABMode = true
	e.state.ABGroup = group
	e.state.ActiveVariant = models.VariantA
}

// ExitABMode leaves comparison mode and resets the active variant.
func (e *Engine) ExitABMode() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.IsABMode = false
	e.state.ABGroup = nil
	e.state.ActiveVariant = models.VariantA
	e.notifyLocked()
}

// SwitchVariant changes which variant is audible. Only meaningful in A/B
// mode, and only for variants the group actually contains; switching does
// not reload or restart playback.
func (e *Engine) SwitchVariant(variant models.ABVariant) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsABMode || e.state.ABGroup == nil {
		return
	}
	if e.state.ABGroup.TrackForVariant(variant) == nil {
		return
	}
	e.state.ActiveVariant = variant
	e.notifyLocked()
}

// notifyLocked sends a state snapshot to all subscribers. Must be called
// with the lock held. Full or closed channels are dropped.
func (e *Engine) notifyLocked() {
	if len(e.listeners) == 0 {
		return
	}
	snapshot := snapshotLocked(&e.state)
	kept := e.listeners[:0]
	for _, listener := range e.listeners {
		select {
		case listener <- snapshot:
			kept = append(kept, listener)
		default:
			close(listener)
		}
	}
	e.listeners = kept
}

// snapshotLocked copies the state so callers never share slices or
// pointers with the engine's internals.
func snapshotLocked(st *models.PlayerState) models.PlayerState {
	snapshot := *st
	snapshot.Playlist = append([]models.MediaTrack{}, st.Playlist...)
	if st.CurrentTrack != nil {
		track := *st.CurrentTrack
		snapshot.CurrentTrack = &track
	}
	if st.QueueConflict.CurrentTrack != nil {
		track := *st.QueueConflict.CurrentTrack
		snapshot.QueueConflict.CurrentTrack = &track
	}
	if st.QueueConflict.NewTrack != nil {
		track := *st.QueueConflict.NewTrack
		snapshot.QueueConflict.NewTrack = &track
	}
	return snapshot
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
