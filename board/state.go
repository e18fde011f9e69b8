package board

import "fmt"

// State is the simulated chip's lifecycle position.
type State int

const (
	// PoweredOff means every rail is dark.
	PoweredOff State = iota
	// Booting covers the settle window after power comes up.
	Booting
	// Idle means the chip is up and waiting for work.
	Idle
	// Programming means an EIN program transfer is in flight.
	Programming
	// Running means the chip was started, by OpStart or a GOC wake.
	Running
)

func (s State) String() string {
	switch s {
	case PoweredOff:
		return "powered-off"
	case Booting:
		return "booting"
	case Idle:
		return "idle"
	case Programming:
		return "programming"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
