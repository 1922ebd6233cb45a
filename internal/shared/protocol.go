package shared

// SearchEntry is one element of the /api/search array.
type SearchEntry struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Region *string `json:"region"` // null when unknown
	Size   int64   `json:"size"`
	MTime  int64   `json:"mtime"`
}

// Envelope wraps results of mutating actions and every error.
type Envelope struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

type FileEntry struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type FilesResponse struct {
	Files []FileEntry `json:"files"`
}

type TitleSummary struct {
	Name      string  `json:"name"`
	Region    *string `json:"region"`
	Publisher *string `json:"publisher"`
	Size      int64   `json:"size"`
	IsDLC     bool    `json:"isDLC"`
	IsDemo    bool    `json:"isDemo"`
}

type TitleInfo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Region    *string     `json:"region"`
	Publisher *string     `json:"publisher"`
	Size      int64       `json:"size"`
	MTime     int64       `json:"mtime"`
	Version   int         `json:"version"`
	IsDLC     bool        `json:"isDLC"`
	IsDemo    bool        `json:"isDemo"`
	File      string      `json:"file,omitempty"`
	Updates   []TitleInfo `json:"updates,omitempty"`
}

type QueueJob struct {
	JobID     string `json:"job_id"`
	TitleID   string `json:"title_id"`
	Kind      string `json:"kind"` // "install" | "preload"
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type ScanResult struct {
	Titles  int `json:"titles"`
	Updates int `json:"updates"`
	Skipped int `json:"skipped"`
	Pruned  int `json:"pruned"`
}

type UserInfo struct {
	Name    string `json:"name"`
	Server  string `json:"server"`
	Version string `json:"version"`
}
