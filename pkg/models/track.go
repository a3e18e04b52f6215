package models

// MediaType distinguishes which playback surface a track needs.
type MediaType string

const (
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
)

// MediaTrack represents a single playable audio or video clip.
type MediaTrack struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	Type      MediaType `json:"type"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Duration  float64   `json:"duration,omitempty"` // in seconds, 0 = unknown
	Format    string    `json:"format,omitempty"`
}

// SupportedFormats lists the recognized media file extensions.
var SupportedFormats = []string{
	"mp3", "wav", "ogg", "aac", "m4a", "opus", "flac",
	"mp4", "webm", "ogv",
}

// VideoFormats are the subset of SupportedFormats played on the video surface.
var VideoFormats = []string{"mp4", "webm", "ogv"}

// IsVideoFormat reports whether ext (without dot, lowercased) is a video format.
func IsVideoFormat(ext string) bool {
	for _, f := range VideoFormats {
		if ext == f {
			return true
		}
	}
	return false
}

// IsSupportedFormat reports whether ext (without dot, lowercased) is playable.
func IsSupportedFormat(ext string) bool {
	for _, f := range SupportedFormats {
		if ext == f {
			return true
		}
	}
	return false
}

// ABVariant labels one member of an A/B comparison group.
type ABVariant string

const (
	VariantA ABVariant = "A"
	VariantB ABVariant = "B"
	VariantC ABVariant = "C"
	VariantD ABVariant = "D"
)

// ABTrack is a MediaTrack tagged with its comparison group membership.
type ABTrack struct {
	MediaTrack
	ABGroupID string    `json:"abGroupId"`
	ABVariant ABVariant `json:"abVariant"`
}

// ABTrackGroup is a set of 2-4 time-aligned variants of the same recording.
// Tracks are ordered by ascending variant letter. Duration is the mean of
// the member durations that are known, or 0 if none are.
type ABTrackGroup struct {
	ID       string    `json:"id"`
	BaseName string    `json:"baseName"`
	Tracks   []ABTrack `json:"tracks"`
	Duration float64   `json:"duration,omitempty"`
}

// Variants returns the variant letters present in the group, in track order.
func (g *ABTrackGroup) Variants() []ABVariant {
	variants := make([]ABVariant, len(g.Tracks))
	for i, t := range g.Tracks {
		variants[i] = t.ABVariant
	}
	return variants
}

// TrackForVariant returns the member with the given variant letter, or nil.
func (g *ABTrackGroup) TrackForVariant(v ABVariant) *ABTrack {
	for i := range g.Tracks {
		if g.Tracks[i].ABVariant == v {
			return &g.Tracks[i]
		}
	}
	return nil
}

// RepeatMode controls what happens when the playlist runs out.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatAll  RepeatMode = "all"
	RepeatOne  RepeatMode = "one"
)

// QueueConflict is the ephemeral prompt state raised when a play request
// arrives while another track is already playing. Never persisted.
type QueueConflict struct {
	IsOpen       bool        `json:"isOpen"`
	CurrentTrack *MediaTrack `json:"currentTrack,omitempty"`
	NewTrack     *MediaTrack `json:"newTrack,omitempty"`
}

// PlayerState is the complete snapshot of the playback engine at a point
// in time. CurrentTrack is kept denormalized alongside CurrentIndex; the
// engine maintains consistency between the two on every mutation.
type PlayerState struct {
	Playlist     []MediaTrack `json:"playlist"`
	CurrentIndex int          `json:"currentIndex"`
	CurrentTrack *MediaTrack  `json:"currentTrack,omitempty"`
	IsPlaying    bool         `json:"isPlaying"`
	Volume       float64      `json:"volume"` // 0.0 to 1.0
	IsMuted      bool         `json:"isMuted"`
	CurrentTime  float64      `json:"currentTime"` // in seconds
	Duration     float64      `json:"duration"`    // in seconds
	IsVisible    bool         `json:"isVisible"`
	IsMini       bool         `json:"isMini"`
	RepeatMode   RepeatMode   `json:"repeatMode"`
	IsShuffled   bool         `json:"isShuffled"`

	// A/B comparison sub-state (session only).
	IsABMode      bool          `json:"isABMode"`
	ABGroup       *ABTrackGroup `json:"abGroup,omitempty"`
	ActiveVariant ABVariant     `json:"activeVariant"`

	QueueConflict QueueConflict `json:"queueConflict"`
}

// PersistedState is the durable subset of PlayerState restored across
// sessions. Transport and A/B compare state are deliberately excluded so a
// restart never resumes into a stale playing or comparison state.
type PersistedState struct {
	Volume       float64      `json:"volume"`
	IsMuted      bool         `json:"isMuted"`
	RepeatMode   RepeatMode   `json:"repeatMode"`
	IsShuffled   bool         `json:"isShuffled"`
	Playlist     []MediaTrack `json:"playlist"`
	CurrentIndex int          `json:"currentIndex"`
	CurrentTrack *MediaTrack  `json:"currentTrack,omitempty"`
}
