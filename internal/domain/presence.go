package domain

import "time"

// Identity is a verified user identity bound to a connection.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// PresenceEntry records the live connection of an online user.
type PresenceEntry struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// Identity returns the identity part of the entry.
func (p PresenceEntry) Identity() Identity {
	return Identity{UserID: p.UserID, DisplayName: p.DisplayName, Email: p.Email}
}

// Presence statuses carried by presence-changed.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
