package surface

import (
	"math"
	"sync"

	"tonewiki/internal/player"
	"tonewiki/pkg/models"

	"github.com/sirupsen/logrus"
)

// driftTolerance is how far a passive A/B surface may lag the active one
// before its position is reconciled, in seconds.
const driftTolerance = 0.1

// Adapter reconciles engine state against real surfaces: one regular
// surface swapped per track, or one surface per variant in A/B mode with
// exactly one unmuted. Engine state reflects intent; a failed play attempt
// is logged and reverts the transport flag (terminal for that attempt, no
// retry).
type Adapter struct {
	mu      sync.Mutex
	engine  *player.Engine
	factory Factory
	logger  *logrus.Logger

	regular       Surface
	loadedTrackID string
	loadedType    models.MediaType

	abSurfaces map[models.ABVariant]Surface
	abGroupID  string

	prev    models.PlayerState
	stateCh <-chan models.PlayerState
}

// NewAdapter creates an adapter for the given engine. Surfaces are created
// lazily through the factory as tracks and groups are loaded.
func NewAdapter(engine *player.Engine, factory Factory, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{
		engine:     engine,
		factory:    factory,
		logger:     logger,
		abSurfaces: make(map[models.ABVariant]Surface),
	}
}

// Start subscribes to engine state changes and reconciles surfaces in the
// background until Stop is called.
func (a *Adapter) Start() {
	ch := a.engine.Subscribe()
	a.stateCh = ch
	go func() {
		for st := range ch {
			a.Apply(st)
		}
	}()
}

// Stop detaches from the engine.
func (a *Adapter) Stop() {
	if a.stateCh != nil {
		a.engine.Unsubscribe(a.stateCh)
	}
}

// Apply reconciles the surfaces against a state snapshot.
func (a *Adapter) Apply(st models.PlayerState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if st.IsABMode && st.ABGroup != nil {
		a.applyABLocked(st)
	} else {
		a.teardownABLocked()
		a.applyRegularLocked(st)
	}
	a.prev = st
}

func (a *Adapter) applyRegularLocked(st models.PlayerState) {
	if st.CurrentTrack == nil {
		if a.regular != nil && a.prev.IsPlaying {
			a.regular.Pause()
		}
		a.loadedTrackID = ""
		return
	}

	track := *st.CurrentTrack
	trackChanged := a.loadedTrackID != track.ID
	if trackChanged {
		if a.regular == nil || a.loadedType != track.Type {
			a.regular = a.factory(track.Type)
			a.loadedType = track.Type
		}
		a.regular.Load(track.URL)
		a.regular.Seek(st.CurrentTime) // supports resuming a restored queue
		a.loadedTrackID = track.ID
	}

	eff := effectiveVolume(st)
	if trackChanged || eff != effectiveVolume(a.prev) {
		a.regular.SetVolume(eff)
	}

	switch {
	case st.IsPlaying && (trackChanged || !a.prev.IsPlaying):
		a.playLocked(a.regular, track.URL)
	case !st.IsPlaying && a.prev.IsPlaying:
		a.regular.Pause()
	}
}

func (a *Adapter) applyABLocked(st models.PlayerState) {
	group := st.ABGroup
	groupChanged := a.abGroupID != group.ID

	if groupChanged {
		a.teardownABLocked()
		if a.regular != nil && a.prev.IsPlaying {
			a.regular.Pause()
		}
		// Force a reload of the regular surface when comparison mode ends.
		a.loadedTrackID = ""

		// Every variant is loaded up front so switching is instantaneous.
		for _, t := range group.Tracks {
			s := a.factory(t.Type)
			s.Load(t.URL)
			s.Seek(0)
			a.abSurfaces[t.ABVariant] = s
		}
		a.abGroupID = group.ID
	}

	// Exactly one surface, the active variant, is audible.
	eff := effectiveVolume(st)
	for variant, s := range a.abSurfaces {
		if variant == st.ActiveVariant {
			s.SetVolume(eff)
		} else {
			s.SetVolume(0)
		}
	}

	// All surfaces play and pause in lockstep.
	switch {
	case st.IsPlaying && (groupChanged || !a.prev.IsPlaying):
		for _, t := range group.Tracks {
			if s, ok := a.abSurfaces[t.ABVariant]; ok {
				a.playLocked(s, t.URL)
			}
		}
	case !st.IsPlaying && a.prev.IsPlaying:
		for _, s := range a.abSurfaces {
			s.Pause()
		}
	}
}

func (a *Adapter) teardownABLocked() {
	if len(a.abSurfaces) == 0 {
		return
	}
	for _, s := range a.abSurfaces {
		s.Pause()
	}
	a.abSurfaces = make(map[models.ABVariant]Surface)
	a.abGroupID = ""
}

// playLocked starts a surface, reverting the engine's transport flag on
// failure (one consistent policy for every rejected play attempt).
func (a *Adapter) playLocked(s Surface, url string) {
	if err := s.Play(); err != nil {
		a.logger.WithError(err).WithField("url", url).Warn("Play attempt rejected by surface")
		a.engine.SetIsPlaying(false)
	}
}

// Seek moves playback to the given time. In A/B mode every surface is
// moved (a full resync); otherwise only the active surface.
func (a *Adapter) Seek(seconds float64) {
	a.mu.Lock()
	if len(a.abSurfaces) > 0 {
		for _, s := range a.abSurfaces {
			s.Seek(seconds)
		}
	} else if a.regular != nil {
		a.regular.Seek(seconds)
	}
	a.mu.Unlock()

	a.engine.SetCurrentTime(seconds)
}

// HandleTimeUpdate ingests a position report from a surface. Reports from
// stale sources (a track no longer current, a variant that is not active)
// are ignored. In A/B mode the active surface is the time authority: any
// other surface drifting more than driftTolerance is pulled back in line.
func (a *Adapter) HandleTimeUpdate(ev Event, seconds float64) {
	st := a.engine.State()
	if !a.eventIsCurrent(ev, st) {
		return
	}

	a.engine.SetCurrentTime(seconds)

	if st.IsABMode {
		a.mu.Lock()
		for variant, s := range a.abSurfaces {
			if variant == st.ActiveVariant {
				continue
			}
			if math.Abs(s.Position()-seconds) > driftTolerance {
				s.Seek(seconds)
			}
		}
		a.mu.Unlock()
	}
}

// HandleDurationKnown ingests a duration report from a surface.
func (a *Adapter) HandleDurationKnown(ev Event, seconds float64) {
	st := a.engine.State()
	if !a.eventIsCurrent(ev, st) {
		return
	}
	a.engine.SetDuration(seconds)
}

// HandleEnded ingests an end-of-media signal. Regular playback advances to
// the next track; a comparison has no "next", so A/B mode stops and
// rewinds instead.
func (a *Adapter) HandleEnded(ev Event) {
	st := a.engine.State()
	if !a.eventIsCurrent(ev, st) {
		return
	}

	if st.IsABMode {
		a.engine.SetIsPlaying(false)
		a.Seek(0)
		return
	}
	a.engine.PlayNext()
}

// eventIsCurrent discriminates stale surface events: the source must still
// correspond to the engine's current track, or in A/B mode to the active
// variant of the current group.
func (a *Adapter) eventIsCurrent(ev Event, st models.PlayerState) bool {
	if st.IsABMode {
		if st.ABGroup == nil {
			return false
		}
		return ev.GroupID == st.ABGroup.ID && ev.Variant == st.ActiveVariant
	}
	return st.CurrentTrack != nil && ev.TrackID == st.CurrentTrack.ID
}

func effectiveVolume(st models.PlayerState) float64 {
	if st.IsMuted {
		return 0
	}
	return st.Volume
}
