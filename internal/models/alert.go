package models

// Alert is a locally synthesized notice. It never leaves the device.
type Alert struct {
	ID      string `json:"id"`
	Seq     uint64 `json:"seq"`
	Message string `json:"message"`
	Date    string `json:"date"`
	Read    bool   `json:"read"`
}

// Snapshot is the full alert list as published to subscribers, newest first.
type Snapshot struct {
	Version uint64  `json:"version"`
	Alerts  []Alert `json:"alerts"`
}

// UnreadCount returns how many alerts in the snapshot are unread.
func (s Snapshot) UnreadCount() int {
	n := 0
	for _, a := range s.Alerts {
		if !a.Read {
			n++
		}
	}
	return n
}
