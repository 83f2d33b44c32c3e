// Package service models the lifecycle of a bridged service.
//
// The state machine is deliberately soft: SetState accepts any state so that
// the control plane can force transitions. Only Activate and Passivate check
// the current state.
package service

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a service.
type State int

const (
	Available State = iota
	Deploying
	Created
	Starting
	Running
	Failed
	Stopping
	Stopped
	Passivating
	Passivated
	Migrating
	Activating
	Recovering
	Recovered
	Reconfiguring
	Undeploying
	Unknown
)

var stateNames = [...]string{
	Available:     "AVAILABLE",
	Deploying:     "DEPLOYING",
	Created:       "CREATED",
	Starting:      "STARTING",
	Running:       "RUNNING",
	Failed:        "FAILED",
	Stopping:      "STOPPING",
	Stopped:       "STOPPED",
	Passivating:   "PASSIVATING",
	Passivated:    "PASSIVATED",
	Migrating:     "MIGRATING",
	Activating:    "ACTIVATING",
	Recovering:    "RECOVERING",
	Recovered:     "RECOVERED",
	Reconfiguring: "RECONFIGURING",
	Undeploying:   "UNDEPLOYING",
	Unknown:       "UNKNOWN",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState converts a state name, case-insensitively.
func ParseState(name string) (State, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown service state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	st, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Kind classifies a service in the data flow.
type Kind int

const (
	SourceService Kind = iota
	TransformationService
	SinkService
	ProbeService
	ServerService
)

var kindNames = [...]string{
	SourceService:         "SOURCE_SERVICE",
	TransformationService: "TRANSFORMATION_SERVICE",
	SinkService:           "SINK_SERVICE",
	ProbeService:          "PROBE_SERVICE",
	ServerService:         "SERVER",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts both the long form (SOURCE_SERVICE) and the short form (SOURCE).
func ParseKind(name string) (Kind, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name || strings.TrimSuffix(n, "_SERVICE") == name {
			return Kind(i), nil
		}
	}
	return TransformationService, fmt.Errorf("unknown service kind %q", name)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
