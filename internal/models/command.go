package models

import (
	"encoding/json"

	"github.com/myaccess/kiosk-console/internal/payload"
)

// Command actions understood by the device socket.
const (
	ActionPatch     = "patch"
	ActionGet       = "get"
	ActionSubscribe = "subscribe"
)

// Command is an outbound message to the device socket.
type Command struct {
	Action  string                  `json:"action" msgpack:"action"`
	Path    string                  `json:"path" msgpack:"path"`
	Paths   []string                `json:"paths,omitempty" msgpack:"paths,omitempty"`
	Payload map[string]payload.Node `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// SubscribeCommand subscribes to every path under the given roots.
func SubscribeCommand(paths ...string) Command {
	return Command{Action: ActionSubscribe, Paths: paths}
}

// GetCommand requests the current document at path.
func GetCommand(path string) Command {
	return Command{Action: ActionGet, Path: path}
}

// MarshalJSON leaves out the path of subscribe commands, which address
// their roots through Paths.
func (c Command) MarshalJSON() ([]byte, error) {
	type wire struct {
		Action  string                  `json:"action"`
		Path    *string                 `json:"path,omitempty"`
		Paths   []string                `json:"paths,omitempty"`
		Payload map[string]payload.Node `json:"payload,omitempty"`
	}
	w := wire{Action: c.Action, Paths: c.Paths, Payload: c.Payload}
	if c.Action != ActionSubscribe {
		w.Path = &c.Path
	}
	return json.Marshal(w)
}
