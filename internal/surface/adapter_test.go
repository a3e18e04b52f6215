package surface

import (
	"errors"
	"fmt"
	"testing"

	"tonewiki/internal/player"
	"tonewiki/pkg/models"

	"github.com/sirupsen/logrus"
)

// fakeSurface records the calls made against it.
type fakeSurface struct {
	loaded   []string
	playErr  error
	playing  bool
	volume   float64
	position float64
	seeks    []float64
	plays    int
	pauses   int
}

func (f *fakeSurface) Load(url string) { f.loaded = append(f.loaded, url) }

func (f *fakeSurface) Play() error {
	f.plays++
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeSurface) Pause() { f.pauses++; f.playing = false }

func (f *fakeSurface) Seek(seconds float64) {
	f.seeks = append(f.seeks, seconds)
	f.position = seconds
}

func (f *fakeSurface) SetVolume(volume float64) { f.volume = volume }

func (f *fakeSurface) Position() float64 { return f.position }

type fixture struct {
	engine   *player.Engine
	adapter  *Adapter
	surfaces []*fakeSurface
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	f := &fixture{engine: player.NewEngine(logger)}
	f.adapter = NewAdapter(f.engine, func(models.MediaType) Surface {
		s := &fakeSurface{}
		f.surfaces = append(f.surfaces, s)
		return s
	}, logger)
	return f
}

func mediaTrack(id, url string) models.MediaTrack {
	return models.MediaTrack{ID: id, URL: url, Title: id, Type: models.MediaTypeAudio}
}

func TestApplyLoadsAndPlaysCurrentTrack(t *testing.T) {
	f := newFixture()
	f.engine.PlayTrack(mediaTrack("t1", "https://cdn.example.com/t1.mp3"), true)

	f.adapter.Apply(f.engine.State())

	if len(f.surfaces) != 1 {
		t.Fatalf("surfaces created = %d, want 1", len(f.surfaces))
	}
	s := f.surfaces[0]
	if len(s.loaded) != 1 || s.loaded[0] != "https://cdn.example.com/t1.mp3" {
		t.Errorf("loaded = %v", s.loaded)
	}
	if s.plays != 1 || !s.playing {
		t.Errorf("plays = %d playing = %v, want started", s.plays, s.playing)
	}
}

func TestApplyReappliesOnlyChanges(t *testing.T) {
	f := newFixture()
	f.engine.PlayTrack(mediaTrack("t1", "u1"), true)
	st := f.engine.State()
	f.adapter.Apply(st)

	// Same snapshot again: no extra load or play.
	f.adapter.Apply(st)

	s := f.surfaces[0]
	if len(s.loaded) != 1 || s.plays != 1 {
		t.Errorf("loaded = %d plays = %d, want one each", len(s.loaded), s.plays)
	}

	f.engine.TogglePlayPause()
	f.adapter.Apply(f.engine.State())
	if s.pauses != 1 {
		t.Errorf("pauses = %d, want 1", s.pauses)
	}
}

func TestApplyVolumeAndMute(t *testing.T) {
	f := newFixture()
	f.engine.PlayTrack(mediaTrack("t1", "u1"), true)
	f.engine.SetVolume(0.6)
	f.adapter.Apply(f.engine.State())

	s := f.surfaces[0]
	if s.volume != 0.6 {
		t.Errorf("volume = %v, want 0.6", s.volume)
	}

	f.engine.SetIsMuted(true)
	f.adapter.Apply(f.engine.State())
	if s.volume != 0 {
		t.Errorf("muted volume = %v, want 0", s.volume)
	}

	f.engine.SetIsMuted(false)
	f.adapter.Apply(f.engine.State())
	if s.volume != 0.6 {
		t.Errorf("unmuted volume = %v, want 0.6 restored", s.volume)
	}
}

func TestApplyResumesRestoredPosition(t *testing.T) {
	f := newFixture()
	tr := mediaTrack("t1", "u1")
	f.engine.ApplyPersisted(&models.PersistedState{
		Volume:       0.8,
		Playlist:     []models.MediaTrack{tr},
		CurrentIndex: 0,
		CurrentTrack: &tr,
	})
	f.engine.SetCurrentTime(42.5)

	f.adapter.Apply(f.engine.State())

	s := f.surfaces[0]
	if len(s.seeks) == 0 || s.seeks[0] != 42.5 {
		t.Errorf("seeks = %v, want initial seek to 42.5", s.seeks)
	}
	if s.plays != 0 {
		t.Error("restored state must not start playback")
	}
}

func TestPlayFailureRevertsTransportFlag(t *testing.T) {
	f := newFixture()
	f.adapter = NewAdapter(f.engine, func(models.MediaType) Surface {
		s := &fakeSurface{playErr: errors.New("autoplay blocked")}
		f.surfaces = append(f.surfaces, s)
		return s
	}, logrus.New())

	f.engine.PlayTrack(mediaTrack("t1", "u1"), true)
	f.adapter.Apply(f.engine.State())

	if f.engine.State().IsPlaying {
		t.Error("IsPlaying still true after rejected play")
	}
}

func abFixture(t *testing.T) (*fixture, models.PlayerState) {
	t.Helper()
	f := newFixture()
	f.engine.PlayTrack(mediaTrack("a", "https://cdn.example.com/mix_A.wav"), true)
	f.adapter.Apply(f.engine.State())
	f.engine.RequestPlay(mediaTrack("b", "https://cdn.example.com/mix_B.wav"))

	st := f.engine.State()
	if !st.IsABMode {
		t.Fatal("engine did not enter A/B mode")
	}
	f.adapter.Apply(st)
	return f, st
}

func TestABModeLoadsAllVariantsOneAudible(t *testing.T) {
	f, st := abFixture(t)

	// One regular surface plus one per variant.
	if len(f.surfaces) != 3 {
		t.Fatalf("surfaces = %d, want 3", len(f.surfaces))
	}

	audible := 0
	for _, s := range f.surfaces[1:] {
		if s.plays != 1 {
			t.Errorf("variant surface plays = %d, want 1", s.plays)
		}
		if s.volume > 0 {
			audible++
		}
	}
	if audible != 1 {
		t.Errorf("audible surfaces = %d, want exactly 1", audible)
	}
	_ = st
}

func TestABVariantSwitchMovesAudibilityWithoutRestart(t *testing.T) {
	f, _ := abFixture(t)

	f.engine.SwitchVariant(models.VariantB)
	f.adapter.Apply(f.engine.State())

	for _, s := range f.surfaces[1:] {
		if s.plays != 1 {
			t.Errorf("plays = %d after switch, want unchanged", s.plays)
		}
		if s.pauses != 0 {
			t.Errorf("pauses = %d after switch, want 0", s.pauses)
		}
	}
	audible := 0
	for _, s := range f.surfaces[1:] {
		if s.volume > 0 {
			audible++
		}
	}
	if audible != 1 {
		t.Errorf("audible surfaces = %d, want exactly 1", audible)
	}
}

func TestABLockstepPause(t *testing.T) {
	f, _ := abFixture(t)

	f.engine.TogglePlayPause()
	f.adapter.Apply(f.engine.State())

	for i, s := range f.surfaces[1:] {
		if s.pauses != 1 {
			t.Errorf("variant %d pauses = %d, want 1", i, s.pauses)
		}
	}
}

func TestExitABModeTearsDownAndReloadsRegular(t *testing.T) {
	f, _ := abFixture(t)

	f.engine.ExitABMode()
	f.adapter.Apply(f.engine.State())

	// Variant surfaces paused on teardown.
	for _, s := range f.surfaces[1:3] {
		if s.pauses == 0 {
			t.Error("variant surface not paused on teardown")
		}
	}
	// The regular surface is reloaded even though the track ID is unchanged.
	if len(f.surfaces[0].loaded) != 2 {
		t.Errorf("regular surface loads = %v, want reload after leaving A/B mode", f.surfaces[0].loaded)
	}
}

func TestHandleTimeUpdateStaleEventIgnored(t *testing.T) {
	f := newFixture()
	f.engine.PlayTrack(mediaTrack("t1", "u1"), true)
	f.adapter.Apply(f.engine.State())

	f.adapter.HandleTimeUpdate(Event{TrackID: "t-old"}, 99)

	if got := f.engine.State().CurrentTime; got != 0 {
		t.Errorf("CurrentTime = %v, want stale report ignored", got)
	}

	f.adapter.HandleTimeUpdate(Event{TrackID: "t1"}, 12.5)
	if got := f.engine.State().CurrentTime; got != 12.5 {
		t.Errorf("CurrentTime = %v, want 12.5", got)
	}
}

func TestHandleTimeUpdateReconcilesDrift(t *testing.T) {
	f, st := abFixture(t)

	// Put the passive surfaces off by more and less than the tolerance.
	f.surfaces[1].position = 10.0
	f.surfaces[2].position = 10.0
	drifted := &fakeSurface{position: 10.25}
	f.adapter.mu.Lock()
	var passiveVariant models.ABVariant
	for _, tr := range st.ABGroup.Tracks {
		if tr.ABVariant != st.ActiveVariant {
			passiveVariant = tr.ABVariant
		}
	}
	f.adapter.abSurfaces[passiveVariant] = drifted
	f.adapter.mu.Unlock()

	f.adapter.HandleTimeUpdate(Event{GroupID: st.ABGroup.ID, Variant: st.ActiveVariant}, 10.0)

	if len(drifted.seeks) != 1 || drifted.seeks[0] != 10.0 {
		t.Errorf("drifted surface seeks = %v, want resync to 10.0", drifted.seeks)
	}

	inSync := &fakeSurface{position: 10.05}
	f.adapter.mu.Lock()
	f.adapter.abSurfaces[passiveVariant] = inSync
	f.adapter.mu.Unlock()

	f.adapter.HandleTimeUpdate(Event{GroupID: st.ABGroup.ID, Variant: st.ActiveVariant}, 10.0)
	if len(inSync.seeks) != 0 {
		t.Errorf("in-tolerance surface seeks = %v, want none", inSync.seeks)
	}
}

func TestHandleTimeUpdatePassiveVariantIgnored(t *testing.T) {
	f, st := abFixture(t)
	f.engine.SetCurrentTime(5)

	var passive models.ABVariant
	for _, tr := range st.ABGroup.Tracks {
		if tr.ABVariant != st.ActiveVariant {
			passive = tr.ABVariant
		}
	}

	f.adapter.HandleTimeUpdate(Event{GroupID: st.ABGroup.ID, Variant: passive}, 77)

	if got := f.engine.State().CurrentTime; got != 5 {
		t.Errorf("CurrentTime = %v, want passive variant report ignored", got)
	}
}

func TestHandleEndedAdvancesQueue(t *testing.T) {
	f := newFixture()
	f.engine.SetPlaylist([]models.MediaTrack{mediaTrack("t1", "u1"), mediaTrack("t2", "u2")})
	f.engine.SetCurrentIndex(0)
	f.engine.SetIsPlaying(true)
	f.adapter.Apply(f.engine.State())

	f.adapter.HandleEnded(Event{TrackID: "t1"})

	st := f.engine.State()
	if st.CurrentTrack == nil || st.CurrentTrack.ID != "t2" {
		t.Errorf("CurrentTrack = %v, want advance to t2", st.CurrentTrack)
	}
}

func TestHandleEndedInABModeStopsAndRewinds(t *testing.T) {
	f, st := abFixture(t)

	f.adapter.HandleEnded(Event{GroupID: st.ABGroup.ID, Variant: st.ActiveVariant})

	got := f.engine.State()
	if got.IsPlaying {
		t.Error("still playing after A/B group ended")
	}
	if got.CurrentTime != 0 {
		t.Errorf("CurrentTime = %v, want rewind to 0", got.CurrentTime)
	}
	for i, s := range f.surfaces[1:3] {
		found := false
		for _, sk := range s.seeks {
			if sk == 0 {
				found = true
			}
		}
		if !found {
			t.Errorf("variant %d not rewound: seeks = %v", i, s.seeks)
		}
	}
}

func TestSeekFansOutInABMode(t *testing.T) {
	f, _ := abFixture(t)

	f.adapter.Seek(30)

	for i, s := range f.surfaces[1:3] {
		if len(s.seeks) == 0 || s.seeks[len(s.seeks)-1] != 30 {
			t.Errorf("variant %d seeks = %v, want 30", i, s.seeks)
		}
	}
	if got := f.engine.State().CurrentTime; got != 30 {
		t.Errorf("CurrentTime = %v, want 30", got)
	}
}

func TestHandleDurationKnown(t *testing.T) {
	f := newFixture()
	f.engine.PlayTrack(mediaTrack("t1", "u1"), true)

	f.adapter.HandleDurationKnown(Event{TrackID: "t1"}, 187.2)
	if got := f.engine.State().Duration; got != 187.2 {
		t.Errorf("Duration = %v, want 187.2", got)
	}

	f.adapter.HandleDurationKnown(Event{TrackID: "ghost"}, 5)
	if got := f.engine.State().Duration; got != 187.2 {
		t.Errorf("Duration = %v, stale report applied", got)
	}
}

func TestFactoryPerMediaType(t *testing.T) {
	var types []models.MediaType
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	e := player.NewEngine(logger)
	a := NewAdapter(e, func(mt models.MediaType) Surface {
		types = append(types, mt)
		return &fakeSurface{}
	}, logger)

	e.PlayTrack(models.MediaTrack{ID: "v1", URL: "u1", Type: models.MediaTypeVideo}, true)
	a.Apply(e.State())
	e.PlayTrack(models.MediaTrack{ID: "a1", URL: "u2", Type: models.MediaTypeAudio}, true)
	a.Apply(e.State())

	want := []models.MediaType{models.MediaTypeVideo, models.MediaTypeAudio}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("factory calls = %v, want %v", types, want)
	}
}
