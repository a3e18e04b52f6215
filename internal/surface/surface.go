// Package surface binds the playback engine's intents to abstract media
// surfaces. The engine decides what should be audible; the adapter makes
// the surfaces match, including the multi-surface synchronization that
// backs A/B comparison mode.
package surface

import "tonewiki/pkg/models"

// Surface is one abstract playback element (an audio or video sink). The
// adapter never decodes media itself; it only directs surfaces and
// consumes the events the host feeds back through the adapter.
//
// Play is the only fallible call: hosts reject playback starts (autoplay
// policy, network errors). Everything else is fire-and-forget.
type Surface interface {
	Load(url string)
	Play() error
	Pause()
	Seek(seconds float64)
	SetVolume(volume float64)
	Position() float64
}

// Factory creates a surface appropriate for the given media type. In A/B
// mode one surface per group member is created, all of the group's type.
type Factory func(mediaType models.MediaType) Surface

// Event identifies which surface an incoming time/duration/ended signal
// came from, so late events for a no-longer-current track or variant can
// be discarded instead of corrupting state.
type Event struct {
	TrackID string
	GroupID string
	Variant models.ABVariant
}
