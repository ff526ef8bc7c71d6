package record

import "time"

// Device describes one installation of the client for an owner.
type Device struct {
	DeviceID    string    `json:"device_id"`
	OwnerID     string    `json:"owner_id"`
	LastSyncAt  time.Time `json:"last_sync_at"`
	SyncVersion int64     `json:"sync_version"`
}
