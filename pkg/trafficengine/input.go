package trafficengine

import (
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

func (e *Engine) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	e.handleKeys()

	x, y := ebiten.CursorPosition()
	e.Tick(Pointer{X: float64(x), Y: float64(y), Down: ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)})
	return nil
}

func (e *Engine) handleKeys() {
	s := &e.settings
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		s.Running = !s.Running
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyD) {
		s.DrawDebug = !s.DrawDebug
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyT) {
		s.ShowTooltip = !s.ShowTooltip
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyG) {
		s.GeoLayout = !s.GeoLayout
		e.relayout()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		if s.MaxVisibleParticles == 0 {
			s.MaxVisibleParticles = 1
		} else if s.MaxVisibleParticles < 1<<30 {
			s.MaxVisibleParticles *= 2
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		s.MaxVisibleParticles /= 2
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		s.LaunchAngleJitter += 0.05
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		s.LaunchAngleJitter -= 0.05
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBracketRight) {
		s.LaunchSpeed += 0.25
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBracketLeft) {
		s.LaunchSpeed -= 0.25
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		if e.FrameCaptureDir == "" {
			log.Println("[CAPTURE] Frame capture disabled, start with -capture-dir to enable")
		} else {
			e.captureRequested = true
		}
	}
}
