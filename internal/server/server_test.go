package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tonewiki/internal/config"
	"tonewiki/internal/keymap"
	"tonewiki/internal/library"
	"tonewiki/internal/player"
	"tonewiki/internal/surface"
	"tonewiki/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type silentSurface struct{ position float64 }

func (n *silentSurface) Load(string)       {}
func (n *silentSurface) Play() error       { return nil }
func (n *silentSurface) Pause()            {}
func (n *silentSurface) Seek(s float64)    { n.position = s }
func (n *silentSurface) SetVolume(float64) {}
func (n *silentSurface) Position() float64 { return n.position }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *player.Engine, *library.Library) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Library.Path = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	engine := player.NewEngine(logger)
	adapter := surface.NewAdapter(engine, func(models.MediaType) surface.Surface {
		return &silentSurface{}
	}, logger)
	keys := keymap.NewHandler(engine, adapter)
	lib := library.New(cfg.Library.Path, logger)

	return NewServer(cfg, logger, engine, adapter, keys, lib), engine, lib
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) models.PlayerState {
	t.Helper()
	var st models.PlayerState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	return st
}

func TestGetPlayerState(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/player/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decodeState(t, rec)
	if st.Volume != 0.8 || st.IsPlaying {
		t.Errorf("initial state = %+v", st)
	}
}

func TestPlayInlineTrack(t *testing.T) {
	s, engine, _ := newTestServer(t, nil)

	track := models.MediaTrack{ID: "t1", URL: "u1", Title: "One", Type: models.MediaTypeAudio}
	rec := postJSON(t, s.Handler(), "/api/player/play", map[string]interface{}{"track": track})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	st := engine.State()
	if st.CurrentTrack == nil || st.CurrentTrack.ID != "t1" || !st.IsPlaying {
		t.Errorf("state = %+v", st)
	}
}

func TestPlayByLibraryID(t *testing.T) {
	s, engine, lib := newTestServer(t, nil)
	lib.Index().Add("/m/a.mp3", models.MediaTrack{ID: "lib-1", URL: "/api/stream/lib-1", Title: "A", Type: models.MediaTypeAudio})

	rec := postJSON(t, s.Handler(), "/api/player/play", map[string]string{"trackId": "lib-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st := engine.State(); st.CurrentTrack == nil || st.CurrentTrack.ID != "lib-1" {
		t.Errorf("state = %+v", st)
	}

	rec = postJSON(t, s.Handler(), "/api/player/play", map[string]string{"trackId": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown ID status = %d, want 404", rec.Code)
	}
}

func TestConflictFlowOverAPI(t *testing.T) {
	s, engine, _ := newTestServer(t, nil)
	h := s.Handler()

	postJSON(t, h, "/api/player/play", map[string]interface{}{
		"track": models.MediaTrack{ID: "t1", URL: "u1", Type: models.MediaTypeAudio},
	})
	rec := postJSON(t, h, "/api/player/play", map[string]interface{}{
		"track": models.MediaTrack{ID: "t2", URL: "u2", Type: models.MediaTypeAudio},
	})

	st := decodeState(t, rec)
	if !st.QueueConflict.IsOpen {
		t.Fatal("conflict prompt not open")
	}

	rec = postJSON(t, h, "/api/player/conflict/resolve", map[string]string{"resolution": "add-to-end"})
	st = decodeState(t, rec)
	if st.QueueConflict.IsOpen {
		t.Error("prompt still open after resolve")
	}
	if len(st.Playlist) != 2 || st.Playlist[1].ID != "t2" {
		t.Errorf("playlist = %+v", st.Playlist)
	}
	_ = engine
}

func TestVolumeAndRepeatRoutes(t *testing.T) {
	s, engine, _ := newTestServer(t, nil)
	h := s.Handler()

	vol := 0.3
	postJSON(t, h, "/api/player/volume", map[string]interface{}{"volume": &vol})
	if got := engine.State().Volume; got != 0.3 {
		t.Errorf("Volume = %v, want 0.3", got)
	}

	rec := postJSON(t, h, "/api/player/repeat", map[string]string{"mode": "all"})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat status = %d", rec.Code)
	}
	if got := engine.State().RepeatMode; got != models.RepeatAll {
		t.Errorf("RepeatMode = %v", got)
	}

	rec = postJSON(t, h, "/api/player/repeat", map[string]string{"mode": "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus repeat status = %d, want 400", rec.Code)
	}
}

func TestSurfaceEventRoute(t *testing.T) {
	s, engine, _ := newTestServer(t, nil)
	h := s.Handler()

	postJSON(t, h, "/api/player/play", map[string]interface{}{
		"track": models.MediaTrack{ID: "t1", URL: "u1", Type: models.MediaTypeAudio},
	})
	postJSON(t, h, "/api/player/events", map[string]interface{}{
		"kind": "time", "trackId": "t1", "seconds": 12.5,
	})
	if got := engine.State().CurrentTime; got != 12.5 {
		t.Errorf("CurrentTime = %v, want 12.5", got)
	}

	postJSON(t, h, "/api/player/events", map[string]interface{}{
		"kind": "duration", "trackId": "t1", "seconds": 180.0,
	})
	if got := engine.State().Duration; got != 180 {
		t.Errorf("Duration = %v, want 180", got)
	}

	rec := postJSON(t, h, "/api/player/events", map[string]interface{}{"kind": "nonsense"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", rec.Code)
	}
}

func TestKeyRoute(t *testing.T) {
	s, engine, _ := newTestServer(t, nil)
	h := s.Handler()

	postJSON(t, h, "/api/player/play", map[string]interface{}{
		"track": models.MediaTrack{ID: "t1", URL: "u1", Type: models.MediaTypeAudio},
	})
	rec := postJSON(t, h, "/api/player/key", map[string]interface{}{"code": "Space"})

	var resp struct {
		Consumed bool               `json:"consumed"`
		State    models.PlayerState `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Consumed {
		t.Error("Space not consumed")
	}
	if engine.State().IsPlaying {
		t.Error("Space did not pause")
	}
}

func TestPasswordMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s, _, _ := newTestServer(t, func(c *config.Config) {
		c.Server.PasswordHash = string(hash)
	})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/player/state", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no password status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/player/state", nil)
	req.Header.Set("X-Access-Password", "sesame")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with password status = %d, want 200", rec.Code)
	}

	// Health stays reachable for probes.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestGetTracksAndSearch(t *testing.T) {
	s, _, lib := newTestServer(t, nil)
	lib.Index().Add("/m/a.mp3", models.MediaTrack{ID: "a", Title: "Morning Mix", Type: models.MediaTypeAudio})
	lib.Index().Add("/m/b.mp3", models.MediaTrack{ID: "b", Title: "Evening Set", Type: models.MediaTypeAudio})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/tracks", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var tracks []models.MediaTrack
	if err := json.Unmarshal(rec.Body.Bytes(), &tracks); err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Errorf("tracks = %d, want 2", len(tracks))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tracks?q=morning", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &tracks); err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 1 || tracks[0].ID != "a" {
		t.Errorf("search result = %+v", tracks)
	}
}

func TestGetABGroups(t *testing.T) {
	s, _, lib := newTestServer(t, nil)
	lib.Index().Add("/m/mix_A.mp3", models.MediaTrack{ID: "a", URL: "/api/stream/a/mix_A.mp3", Title: "mix_A", Type: models.MediaTypeAudio})
	lib.Index().Add("/m/mix_B.mp3", models.MediaTrack{ID: "b", URL: "/api/stream/b/mix_B.mp3", Title: "mix_B", Type: models.MediaTypeAudio})
	lib.Index().Add("/m/solo.mp3", models.MediaTrack{ID: "c", URL: "/api/stream/c/solo.mp3", Title: "solo", Type: models.MediaTypeAudio})

	req := httptest.NewRequest(http.MethodGet, "/api/tracks/groups", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var groups []models.ABTrackGroup
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].BaseName != "mix" || len(groups[0].Tracks) != 2 {
		t.Errorf("group = %+v", groups[0])
	}
}

func TestStreamUnknownTrack(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/ghost", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/player/next", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
