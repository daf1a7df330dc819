package model

import "encoding/json"

// ConnectivityStatus reflects the feed connection lifecycle only.
type ConnectivityStatus int

const (
	Disconnected ConnectivityStatus = iota
	Connected
)

func (s ConnectivityStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

func (s ConnectivityStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
