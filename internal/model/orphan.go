package model

import "time"

// Orphan reasons.
const (
	OrphanCompensationFailed = "compensation_failed" // record insert and rollback both failed
	OrphanDeleteFailed       = "delete_failed"       // record removed, object delete failed
)

// Orphan describes a stored object that no metadata references anymore.
type Orphan struct {
	Domain     string    `json:"domain"`
	Container  string    `json:"container"`
	Key        string    `json:"key"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}
