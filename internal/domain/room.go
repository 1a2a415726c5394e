package domain

type (
	RoomID    string
	MessageID string
)

// DefaultRoom is provisioned at startup and receives every participant on join.
const DefaultRoom RoomID = "general"

type RoomInfo struct {
	ID          RoomID `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
	HistoryLen  int    `json:"historyLength"`
}
