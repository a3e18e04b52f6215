package server

import (
	"encoding/json"
	"net/http"

	"tonewiki/internal/player"
	"tonewiki/internal/surface"
	"tonewiki/pkg/models"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeState is the uniform response for every mutating player route.
func (s *Server) writeState(w http.ResponseWriter) {
	s.writeJSON(w, s.engine.State())
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.WithError(err).Debug("Invalid request body")
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleGetPlayerState returns the full state snapshot.
func (s *Server) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w)
}

// handlePlay routes a play request through the conflict flow. The target
// can be named by library track ID or given inline as a full track.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		TrackID string             `json:"trackId,omitempty"`
		Track   *models.MediaTrack `json:"track,omitempty"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	var track models.MediaTrack
	switch {
	case req.TrackID != "":
		t, ok := s.lib.Index().TrackByID(req.TrackID)
		if !ok {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		track = t
	case req.Track != nil:
		track = *req.Track
	default:
		http.Error(w, "trackId or track required", http.StatusBadRequest)
		return
	}

	s.engine.RequestPlay(track)
	s.writeState(w)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.TogglePlayPause()
	s.writeState(w)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.PlayNext()
	s.writeState(w)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.PlayPrevious()
	s.writeState(w)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.adapter.Seek(req.Seconds)
	s.writeState(w)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Volume  *float64 `json:"volume,omitempty"`
		IsMuted *bool    `json:"isMuted,omitempty"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Volume != nil {
		s.engine.SetVolume(*req.Volume)
	}
	if req.IsMuted != nil {
		s.engine.SetIsMuted(*req.IsMuted)
	}
	s.writeState(w)
}

func (s *Server) handleRepeat(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Mode models.RepeatMode `json:"mode"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	switch req.Mode {
	case models.RepeatNone, models.RepeatAll, models.RepeatOne:
		s.engine.SetRepeatMode(req.Mode)
	default:
		http.Error(w, "Invalid repeat mode", http.StatusBadRequest)
		return
	}
	s.writeState(w)
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.ToggleShuffle()
	s.writeState(w)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Visible bool `json:"visible"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.engine.SetIsVisible(req.Visible)
	s.writeState(w)
}

func (s *Server) handleMini(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Mini bool `json:"mini"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.engine.SetIsMini(req.Mini)
	s.writeState(w)
}

// handleQueue adds a track to the playlist at the end or directly after
// the current track.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		TrackID  string             `json:"trackId,omitempty"`
		Track    *models.MediaTrack `json:"track,omitempty"`
		Position string             `json:"position,omitempty"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	var track models.MediaTrack
	switch {
	case req.TrackID != "":
		t, ok := s.lib.Index().TrackByID(req.TrackID)
		if !ok {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		track = t
	case req.Track != nil:
		track = *req.Track
	default:
		http.Error(w, "trackId or track required", http.StatusBadRequest)
		return
	}

	position := player.PositionEnd
	if req.Position == string(player.PositionNext) {
		position = player.PositionNext
	}
	s.engine.AddToPlaylist(track, position)
	s.writeState(w)
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		TrackID string `json:"trackId"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.engine.RemoveFromPlaylist(req.TrackID)
	s.writeState(w)
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.ClearPlaylist()
	s.writeState(w)
}

func (s *Server) handleSetIndex(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.engine.SetCurrentIndex(req.Index)
	s.writeState(w)
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Resolution player.Resolution `json:"resolution"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.engine.ResolveQueueConflict(req.Resolution)
	s.writeState(w)
}

func (s *Server) handleCloseConflict(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.CloseQueueConflict()
	s.writeState(w)
}

func (s *Server) handleSwitchVariant(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Variant models.ABVariant `json:"variant"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.engine.SwitchVariant(req.Variant)
	s.writeState(w)
}

func (s *Server) handleExitAB(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.engine.ExitABMode()
	s.writeState(w)
}

// handleSurfaceEvent ingests time, duration and ended reports from the
// client-side surfaces. Stale reports are filtered by the adapter.
func (s *Server) handleSurfaceEvent(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Kind    string           `json:"kind"`
		TrackID string           `json:"trackId,omitempty"`
		GroupID string           `json:"groupId,omitempty"`
		Variant models.ABVariant `json:"variant,omitempty"`
		Seconds float64          `json:"seconds,omitempty"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	ev := surface.Event{TrackID: req.TrackID, GroupID: req.GroupID, Variant: req.Variant}
	switch req.Kind {
	case "time":
		s.adapter.HandleTimeUpdate(ev, req.Seconds)
	case "duration":
		s.adapter.HandleDurationKnown(ev, req.Seconds)
	case "ended":
		s.adapter.HandleEnded(ev)
	default:
		http.Error(w, "Unknown event kind", http.StatusBadRequest)
		return
	}
	s.writeState(w)
}

// handleKey dispatches a keyboard shortcut.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Code             string `json:"code"`
		TextInputFocused bool   `json:"textInputFocused"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	consumed := s.keys.HandleKey(req.Code, req.TextInputFocused)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Consumed bool               `json:"consumed"`
		State    models.PlayerState `json:"state"`
	}{consumed, s.engine.State()})
}
