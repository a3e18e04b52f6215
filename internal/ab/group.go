package ab

import (
	"fmt"
	"sort"
	"time"

	"tonewiki/pkg/models"
)

// durationTolerance is the advisory limit on how far apart member
// durations may drift before a group is flagged, in seconds.
const durationTolerance = 5.0

// ConvertToABTrack tags a track with group membership derived from its URL.
// Returns nil if the URL does not carry a variant suffix.
func ConvertToABTrack(track models.MediaTrack, groupID string) *models.ABTrack {
	parsed := ParseFilename(track.URL)
	if !parsed.IsABTrack {
		return nil
	}

	return &models.ABTrack{
		MediaTrack: track,
		ABGroupID:  groupID,
		ABVariant:  parsed.Variant,
	}
}

// CreateGroup attempts to form a comparison group from 2-4 tracks. All
// tracks must parse as variants sharing the first track's base name and
// extension, with no duplicate variant letters. Returns nil when the tracks
// do not form a valid group; callers fall back to treating them as
// independent tracks.
//
// The group ID combines the base name with the creation timestamp. Groups
// are ephemeral (scoped to one comparison session), so same-millisecond
// collisions are acceptable.
func CreateGroup(tracks []models.MediaTrack) *models.ABTrackGroup {
	if len(tracks) < 2 || len(tracks) > 4 {
		return nil
	}

	parsed := make([]ParseResult, len(tracks))
	for i, t := range tracks {
		parsed[i] = ParseFilename(t.URL)
	}

	first := parsed[0]
	if !first.IsABTrack {
		return nil
	}

	for _, p := range parsed {
		if !p.IsABTrack || p.BaseName != first.BaseName || p.Extension != first.Extension {
			return nil
		}
	}

	seen := make(map[models.ABVariant]bool, len(parsed))
	for _, p := range parsed {
		if seen[p.Variant] {
			return nil
		}
		seen[p.Variant] = true
	}

	groupID := fmt.Sprintf("ab-%s-%d", first.BaseName, time.Now().UnixMilli())

	abTracks := make([]models.ABTrack, len(tracks))
	for i, t := range tracks {
		abTracks[i] = models.ABTrack{
			MediaTrack: t,
			ABGroupID:  groupID,
			ABVariant:  parsed[i].Variant,
		}
	}
	sort.Slice(abTracks, func(i, j int) bool {
		return abTracks[i].ABVariant < abTracks[j].ABVariant
	})

	// Mean of the known durations; zero if none are known.
	var sum float64
	var known int
	for _, t := range tracks {
		if t.Duration > 0 {
			sum += t.Duration
			known++
		}
	}
	var avgDuration float64
	if known > 0 {
		avgDuration = sum / float64(known)
	}

	return &models.ABTrackGroup{
		ID:       groupID,
		BaseName: first.BaseName,
		Tracks:   abTracks,
		Duration: avgDuration,
	}
}

// ValidateGroupDurations checks that member durations agree within the
// tolerance. This is advisory: CreateGroup does not enforce it, callers may
// surface a warning. Groups with fewer than two known durations pass.
func ValidateGroupDurations(group *models.ABTrackGroup) (valid bool, maxDiff float64) {
	var durations []float64
	for _, t := range group.Tracks {
		if t.Duration > 0 {
			durations = append(durations, t.Duration)
		}
	}
	if len(durations) < 2 {
		return true, 0
	}

	min, max := durations[0], durations[0]
	for _, d := range durations[1:] {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}

	maxDiff = max - min
	return maxDiff <= durationTolerance, maxDiff
}
