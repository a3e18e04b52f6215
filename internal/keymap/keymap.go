// Package keymap translates keyboard shortcuts into playback engine
// operations. Key codes follow the DOM KeyboardEvent.code convention so a
// browser-facing control surface can forward events unchanged.
package keymap

import (
	"strings"

	"tonewiki/internal/player"
	"tonewiki/internal/surface"
	"tonewiki/pkg/models"
)

// volumeStep is how much comma/period move the volume per press.
const volumeStep = 0.1

// Handler dispatches key presses to the engine and, for seek shortcuts,
// through the surface adapter so positions reach the actual surfaces.
type Handler struct {
	engine  *player.Engine
	adapter *surface.Adapter
}

// NewHandler binds a handler to an engine and its surface adapter.
func NewHandler(engine *player.Engine, adapter *surface.Adapter) *Handler {
	return &Handler{engine: engine, adapter: adapter}
}

// HandleKey dispatches a single key press. textInputFocused suppresses
// every shortcut, so typing in a search box never drives the player.
// It reports whether the key was consumed.
func (h *Handler) HandleKey(code string, textInputFocused bool) bool {
	if textInputFocused {
		return false
	}

	st := h.engine.State()

	switch code {
	case "Space":
		h.engine.TogglePlayPause()
	case "ArrowLeft":
		h.engine.PlayPrevious()
	case "ArrowRight":
		h.engine.PlayNext()
	case "Comma":
		h.engine.SetVolume(st.Volume - volumeStep)
	case "Period":
		h.engine.SetVolume(st.Volume + volumeStep)
	case "KeyM":
		h.engine.SetIsMuted(!st.IsMuted)
	case "KeyR":
		h.engine.SetRepeatMode(nextRepeatMode(st.RepeatMode))
	case "KeyS":
		h.engine.ToggleShuffle()
	case "Escape":
		if !st.IsABMode {
			return false
		}
		h.engine.ExitABMode()
	case "KeyA", "KeyB", "KeyC", "KeyD":
		if !st.IsABMode {
			return false
		}
		h.engine.SwitchVariant(models.ABVariant(strings.TrimPrefix(code, "Key")))
	default:
		if decile, ok := digitDecile(code); ok {
			if st.Duration > 0 {
				h.adapter.Seek(st.Duration * decile)
			}
			return true
		}
		return false
	}
	return true
}

// nextRepeatMode cycles none, all, one, and back to none.
func nextRepeatMode(mode models.RepeatMode) models.RepeatMode {
	switch mode {
	case models.RepeatNone:
		return models.RepeatAll
	case models.RepeatAll:
		return models.RepeatOne
	default:
		return models.RepeatNone
	}
}

// digitDecile maps Digit0-Digit9 to a fraction of the duration: Digit0 is
// the start, Digit9 is nine tenths in.
func digitDecile(code string) (float64, bool) {
	if len(code) != 6 || !strings.HasPrefix(code, "Digit") {
		return 0, false
	}
	d := code[5]
	if d < '0' || d > '9' {
		return 0, false
	}
	return float64(d-'0') / 10, true
}
