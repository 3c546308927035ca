package models

import "github.com/google/uuid"

// ActionRecord is one applied action as written to the action journal.
type ActionRecord struct {
	SessionID uuid.UUID `json:"session_id"`
	MatchCode string    `json:"match_code"`
	Username  string    `json:"username"`
	Index     int       `json:"index"`
	Value     int       `json:"value"`
	Remote    bool      `json:"remote"`
	Timestamp int64     `json:"timestamp"`
}
