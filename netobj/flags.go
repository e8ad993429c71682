package netobj

import "strings"

// Flags describe how a member travels
type Flags uint16

const (
	// Broadcast sends server side changes to every connection
	Broadcast Flags = 1 << iota
	// OwnerSend sends server side changes to the owning connection only
	OwnerSend
	// ClientSend lets the owning client send the member to the server
	ClientSend
	// Persistent members are saved by the store
	Persistent
	// Snapshot members are resampled each tick and travel latest-wins
	Snapshot
	// Delta members send vector arguments as deltas against the last sent value
	Delta
)

var flagNames = []string{"broadcast", "owner", "client", "persistent", "snapshot", "delta"}

func (f Flags) Has(o Flags) bool {
	return f&o == o
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
