package library

import (
	"sort"
	"strings"
	"sync"

	"tonewiki/pkg/models"
)

// Index is the in-memory catalog of scanned tracks, keyed both by track ID
// (for streaming lookups) and by file path (for watcher removals).
type Index struct {
	mu     sync.RWMutex
	byID   map[string]indexEntry
	byPath map[string]string // path -> track ID
}

type indexEntry struct {
	track models.MediaTrack
	path  string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byID:   make(map[string]indexEntry),
		byPath: make(map[string]string),
	}
}

// Add inserts or replaces the track for a file path.
func (ix *Index) Add(path string, track models.MediaTrack) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if oldID, ok := ix.byPath[path]; ok {
		delete(ix.byID, oldID)
	}
	ix.byID[track.ID] = indexEntry{track: track, path: path}
	ix.byPath[path] = track.ID
}

// RemoveByPath drops the track indexed under a file path, reporting
// whether anything was removed.
func (ix *Index) RemoveByPath(path string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, ok := ix.byPath[path]
	if !ok {
		return false
	}
	delete(ix.byPath, path)
	delete(ix.byID, id)
	return true
}

// TrackByID looks up a track by its ID.
func (ix *Index) TrackByID(id string) (models.MediaTrack, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entry, ok := ix.byID[id]
	return entry.track, ok
}

// PathByID returns the file path backing a track ID.
func (ix *Index) PathByID(id string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entry, ok := ix.byID[id]
	return entry.path, ok
}

// Tracks returns all tracks ordered by title.
func (ix *Index) Tracks() []models.MediaTrack {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	tracks := make([]models.MediaTrack, 0, len(ix.byID))
	for _, entry := range ix.byID {
		tracks = append(tracks, entry.track)
	}
	sort.Slice(tracks, func(i, j int) bool {
		return strings.ToLower(tracks[i].Title) < strings.ToLower(tracks[j].Title)
	})
	return tracks
}

// Search returns tracks whose title or artist contains the query,
// case-insensitively, ordered by title.
func (ix *Index) Search(query string) []models.MediaTrack {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return ix.Tracks()
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var tracks []models.MediaTrack
	for _, entry := range ix.byID {
		if strings.Contains(strings.ToLower(entry.track.Title), query) ||
			strings.Contains(strings.ToLower(entry.track.Artist), query) {
			tracks = append(tracks, entry.track)
		}
	}
	sort.Slice(tracks, func(i, j int) bool {
		return strings.ToLower(tracks[i].Title) < strings.ToLower(tracks[j].Title)
	})
	return tracks
}

// Size returns the number of indexed tracks.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}
