package notify

import "encoding/json"

// Event kinds pushed to connected clients.
const (
	EventFriendRequest    = "friend_request"
	EventRequestAccepted  = "friend_request_accepted"
	EventRequestDeclined  = "friend_request_declined"
	EventRequestCancelled = "friend_request_cancelled"
	EventFriendRemoved    = "friend_removed"
	EventStatusUpdate     = "status_update"
)

// Event is an application-defined notification handed to the registry for
// fan-out. It reaches the wire as its JSON text serialization.
type Event struct {
	Kind    string      `json:"kind"`
	From    string      `json:"from,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Marshal returns the wire form of the event.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}
