package server

import (
	"net/http"
	"strings"

	"tonewiki/internal/ab"
	"tonewiki/pkg/models"
)

// handleGetTracks lists the library, optionally filtered with ?q=.
func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query != "" {
		s.writeJSON(w, s.lib.Index().Search(query))
		return
	}
	s.writeJSON(w, s.lib.Index().Tracks())
}

// handleGetABGroups lists the comparison groups buildable from the
// current library: tracks whose filenames carry variant suffixes,
// bucketed by base name and extension.
func (s *Server) handleGetABGroups(w http.ResponseWriter, r *http.Request) {
	var keys []string
	byKey := make(map[string][]models.MediaTrack)
	for _, track := range s.lib.Index().Tracks() {
		parsed := ab.ParseFilename(track.URL)
		if !parsed.IsABTrack {
			continue
		}
		key := parsed.BaseName + "." + parsed.Extension
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], track)
	}

	groups := []*models.ABTrackGroup{}
	for _, key := range keys {
		if group := ab.CreateGroup(byKey[key]); group != nil {
			groups = append(groups, group)
		}
	}
	s.writeJSON(w, groups)
}

// handleStreamTrack serves media file bytes for a track ID with Range
// support, so surfaces can seek without downloading the whole file. The
// path is /api/stream/<id>/<filename>; only the ID is significant.
func (s *Server) handleStreamTrack(w http.ResponseWriter, r *http.Request) {
	trackID := strings.TrimPrefix(r.URL.Path, "/api/stream/")
	if i := strings.IndexByte(trackID, '/'); i >= 0 {
		trackID = trackID[:i]
	}
	if trackID == "" {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	path, ok := s.lib.Index().PathByID(trackID)
	if !ok {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	contentType := s.lib.Extractor().ContentType(path)
	if err := s.streamFile(w, r, path, contentType); err != nil {
		s.logger.WithError(err).WithField("track_id", trackID).Error("Streaming failed")
	}
}

// handleArtwork serves cached embedded artwork.
func (s *Server) handleArtwork(w http.ResponseWriter, r *http.Request) {
	artID := strings.TrimPrefix(r.URL.Path, "/api/artwork/")
	if artID == "" {
		http.Error(w, "Invalid artwork ID", http.StatusBadRequest)
		return
	}

	data, exists := s.lib.Extractor().GetArtwork(artID)
	if !exists {
		http.Error(w, "Artwork not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", s.lib.Extractor().ArtworkMimeType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
