package ice

import "fmt"

// NotConnectedError indicates an operation that needs a negotiated
// session was called before Connect succeeded.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("ice: %s requires a connected session", e.Op)
}

// NegotiationError indicates the board and session could not agree on
// a protocol version.
type NegotiationError struct {
	// Requested is the version the session asked for; zero when the
	// session would have taken any.
	Requested [2]byte

	// Offered lists the versions the board enumerated.
	Offered [][2]byte

	// Reason describes what went wrong.
	Reason string
}

func (e *NegotiationError) Error() string {
	if e.Requested != [2]byte{} {
		return fmt.Sprintf("ice: version %d.%d not negotiable (%s), board offers %s",
			e.Requested[0], e.Requested[1], e.Reason, formatVersions(e.Offered))
	}
	return fmt.Sprintf("ice: version negotiation failed (%s), board offers %s",
		e.Reason, formatVersions(e.Offered))
}

func formatVersions(versions [][2]byte) string {
	if len(versions) == 0 {
		return "nothing"
	}
	s := ""
	for i, v := range versions {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d.%d", v[0], v[1])
	}
	return s
}

// NotSupportedError indicates the negotiated version's capability set
// does not include the requested channel.
type NotSupportedError struct {
	Tag     byte
	Version [2]byte
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("ice: channel %q not offered by protocol version %d.%d",
		e.Tag, e.Version[0], e.Version[1])
}

// ConfigError indicates an invalid value in a loaded configuration
// file.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ice: config key %q: %s", e.Key, e.Reason)
}
