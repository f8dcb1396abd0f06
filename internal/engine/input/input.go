// Package input turns SDL2 events into viewer controls.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// Frame is the input gathered during one frame.
type Frame struct {
	Quit bool

	// Resized is set when the drawable changed size.
	Resized       bool
	Width, Height int32

	// Mouse drag with the left button held, in pixels.
	DragX, DragY float32
	// Wheel is the accumulated vertical scroll.
	Wheel float32

	// Pick is set by a right click at PickX, PickY.
	Pick         bool
	PickX, PickY float32

	ToggleRotate bool // Space
	ToggleCull   bool // C
	Refit        bool // F
}

// Input polls SDL events.
type Input struct {
	dragging bool
}

// New creates an input handler.
func New() *Input {
	return &Input{}
}

// Update drains the SDL event queue into a Frame.
func (i *Input) Update() Frame {
	var f Frame
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		i.Apply(event, &f)
	}
	return f
}

// Apply folds one event into f.
func (i *Input) Apply(event sdl.Event, f *Frame) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		f.Quit = true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
			f.Resized = true
			f.Width, f.Height = e.Data1, e.Data2
		}

	case *sdl.KeyboardEvent:
		if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
			return
		}
		switch e.Keysym.Sym {
		case sdl.K_ESCAPE:
			f.Quit = true
		case sdl.K_SPACE:
			f.ToggleRotate = !f.ToggleRotate
		case sdl.K_c:
			f.ToggleCull = !f.ToggleCull
		case sdl.K_f:
			f.Refit = true
		}

	case *sdl.MouseButtonEvent:
		switch e.Button {
		case sdl.BUTTON_LEFT:
			i.dragging = e.Type == sdl.MOUSEBUTTONDOWN
		case sdl.BUTTON_RIGHT:
			if e.Type == sdl.MOUSEBUTTONDOWN {
				f.Pick = true
				f.PickX, f.PickY = float32(e.X), float32(e.Y)
			}
		}

	case *sdl.MouseMotionEvent:
		if i.dragging {
			f.DragX += float32(e.XRel)
			f.DragY += float32(e.YRel)
		}

	case *sdl.MouseWheelEvent:
		f.Wheel += float32(e.Y)
	}
}
