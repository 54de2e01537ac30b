package input

import "github.com/veandco/go-sdl2/sdl"

// Action is what the wallpaper does in response to input.
type Action int

const (
	ActionNone Action = iota
	ActionNext
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionNext:
		return "next"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

// binding is one key or button and whether it was down at the last poll.
type binding struct {
	action Action
	down   bool
}

// Bindings maps keys and mouse buttons to actions. An action fires once when
// its input goes down; holding it does not repeat.
type Bindings struct {
	keys    map[sdl.Scancode]*binding
	buttons map[uint32]*binding
}

// NewBindings returns the default map: Right arrow, N or a left click skip
// to the next video; Escape or Q quits.
func NewBindings() *Bindings {
	return &Bindings{
		keys: map[sdl.Scancode]*binding{
			sdl.SCANCODE_RIGHT:  {action: ActionNext},
			sdl.SCANCODE_N:      {action: ActionNext},
			sdl.SCANCODE_ESCAPE: {action: ActionQuit},
			sdl.SCANCODE_Q:      {action: ActionQuit},
		},
		buttons: map[uint32]*binding{
			sdl.ButtonLMask(): {action: ActionNext},
		},
	}
}

// Poll returns the highest priority action whose input went down since the
// last poll. Quit wins over next. keyState is sdl.GetKeyboardState and
// mouseState the button mask from sdl.GetMouseState.
func (b *Bindings) Poll(keyState []uint8, mouseState uint32) Action {
	fired := ActionNone
	for code, k := range b.keys {
		down := int(code) < len(keyState) && keyState[code] != 0
		if k.press(down) && k.action > fired {
			fired = k.action
		}
	}
	for mask, m := range b.buttons {
		if m.press(mouseState&mask != 0) && m.action > fired {
			fired = m.action
		}
	}
	return fired
}

// Reset forgets held inputs. After focus loss SDL may never report the
// release, so a key still held on return fires again.
func (b *Bindings) Reset() {
	for _, k := range b.keys {
		k.down = false
	}
	for _, m := range b.buttons {
		m.down = false
	}
}

func (in *binding) press(down bool) bool {
	pressed := down && !in.down
	in.down = down
	return pressed
}
