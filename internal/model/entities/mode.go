package entities

// Mode is the sampling phase of the node.
type Mode int

const (
	// ModeService is the fast-polling phase right after start-up.
	ModeService Mode = iota
	// ModeNormal is the throttled phase adopted after the service window. Terminal.
	ModeNormal
)

func (m Mode) String() string {
	switch m {
	case ModeService:
		return "service"
	case ModeNormal:
		return "normal"
	default:
		return "unknown"
	}
}
