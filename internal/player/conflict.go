package player

import (
	"tonewiki/internal/ab"
	"tonewiki/pkg/models"
)

// Resolution is the listener's choice for a queue conflict.
type Resolution string

const (
	ResolutionReplace  Resolution = "replace"
	ResolutionPlayNext Resolution = "play-next"
	ResolutionAddToEnd Resolution = "add-to-end"
	ResolutionCancel   Resolution = "cancel"
)

// RequestPlay is the entry point for user-initiated "play this" actions.
// If the target is the A/B counterpart of the playing track the two are
// grouped and the engine enters comparison mode. If something else is
// already playing, the queue-conflict prompt opens instead of silently
// discarding the listener's queue. Otherwise the track plays immediately,
// replacing the playlist.
func (e *Engine) RequestPlay(track models.MediaTrack) {
	e.mu.Lock()

	busy := e.state.IsPlaying && e.state.CurrentTrack != nil
	if busy && e.state.CurrentTrack.ID != track.ID {
		current := *e.state.CurrentTrack

		if ab.IsSameGroup(current.URL, track.URL) {
			if group := ab.CreateGroup([]models.MediaTrack{current, track}); group != nil {
				e.enterABModeLocked(group)
				e.state.CurrentTime = 0
				e.state.IsPlaying = true
				e.state.IsVisible = true
				observer := e.onVisibility
				e.notifyLocked()
				e.mu.Unlock()
				if observer != nil {
					observer(true)
				}
				e.logger.WithField("group", group.ID).Info("Entered A/B comparison mode")
				return
			}
		}

		newTrack := track
		e.state.QueueConflict = models.QueueConflict{
			IsOpen:       true,
			CurrentTrack: &current,
			NewTrack:     &newTrack,
		}
		e.notifyLocked()
		e.mu.Unlock()
		return
	}

	e.playTrackLocked(track, true)
	observer := e.onVisibility
	e.notifyLocked()
	e.mu.Unlock()

	if observer != nil {
		observer(true)
	}
}

// OpenQueueConflict raises the conflict prompt for the given pair.
func (e *Engine) OpenQueueConflict(current, newTrack models.MediaTrack) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.QueueConflict = models.QueueConflict{
		IsOpen:       true,
		CurrentTrack: &current,
		NewTrack:     &newTrack,
	}
	e.notifyLocked()
}

// CloseQueueConflict dismisses the prompt without applying anything.
func (e *Engine) CloseQueueConflict() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeQueueConflictLocked()
	e.notifyLocked()
}

func (e *Engine) closeQueueConflictLocked() {
	e.state.QueueConflict = models.QueueConflict{}
}

// ResolveQueueConflict applies the listener's choice and closes the
// prompt. Unknown resolutions and a prompt that is not open are ignored.
func (e *Engine) ResolveQueueConflict(resolution Resolution) {
	e.mu.Lock()

	if !e.state.QueueConflict.IsOpen || e.state.QueueConflict.NewTrack == nil {
		e.mu.Unlock()
		return
	}
	newTrack := *e.state.QueueConflict.NewTrack

	var becameVisible bool
	switch resolution {
	case ResolutionReplace:
		e.playTrackLocked(newTrack, true)
		becameVisible = true
	case ResolutionPlayNext:
		e.addToPlaylistLocked(newTrack, PositionNext)
	case ResolutionAddToEnd:
		e.addToPlaylistLocked(newTrack, PositionEnd)
	case ResolutionCancel:
		// Nothing besides closing the prompt.
	default:
		e.mu.Unlock()
		return
	}

	e.closeQueueConflictLocked()
	observer := e.onVisibility
	e.notifyLocked()
	e.mu.Unlock()

	if becameVisible && observer != nil {
		observer(true)
	}
}
