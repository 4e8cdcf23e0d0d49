package trafficengine

import "math"

// Settings are the runtime knobs of the simulation. The keyboard handler and
// any other UI write them directly; Tick takes a copy at the start of every frame.
type Settings struct {
	Running     bool
	DrawDebug   bool
	ShowTooltip bool
	GeoLayout   bool

	MaxVisibleParticles uint32
	LaunchAngleJitter   float64 // radians, symmetric around the direct heading
	LaunchSpeed         float64 // pixels per tick
	ArrivalDistance     float64
	HostRadius          float64
}

func DefaultSettings() Settings {
	return Settings{
		Running:             true,
		ShowTooltip:         true,
		MaxVisibleParticles: 10000,
		LaunchAngleJitter:   0.1,
		LaunchSpeed:         1.5,
		ArrivalDistance:     8,
		HostRadius:          10,
	}
}

func (s *Settings) clamp() {
	if s.LaunchAngleJitter < 0 {
		s.LaunchAngleJitter = 0
	}
	if s.LaunchAngleJitter > math.Pi {
		s.LaunchAngleJitter = math.Pi
	}
	if s.LaunchSpeed < 0.25 {
		s.LaunchSpeed = 0.25
	}
	if s.ArrivalDistance < 0 {
		s.ArrivalDistance = 0
	}
	if s.HostRadius < 1 {
		s.HostRadius = 1
	}
}
