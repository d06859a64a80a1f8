package index

import "time"

// SyncQueueEntry is one pending copy from SrcURL to DstURL
type SyncQueueEntry struct {
	ID        int64     `json:"id"`
	SrcURL    string    `json:"src_url"`
	DstURL    string    `json:"dst_url"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncConfig is a user-declared pair of locations kept in sync
type SyncConfig struct {
	ID      int64      `json:"id"`
	SrcURL  string     `json:"src_url"`
	DstURL  string     `json:"dst_url"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// DirectoryRow is a persisted folder node of a Drive session
type DirectoryRow struct {
	DirectoryID   string
	DirectoryName string
	ParentID      string
	IsRoot        bool
	ServiceType   string
	Session       string
}

// BlacklistEntry is a URL substring excluded from indexing and sync
type BlacklistEntry struct {
	ID  int64  `json:"id"`
	URL string `json:"blacklist_url"`
}
