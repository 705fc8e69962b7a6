package api

import (
	"encoding/json"
	"time"
)

// Auth carries the identity fields every authenticated call sends as
// mid, t and aid.
type Auth struct {
	UserID    string
	Token     string
	ProjectID string
}

func (a Auth) fields() map[string]any {
	fields := map[string]any{"mid": a.UserID, "t": a.Token}
	if a.ProjectID != "" {
		fields["aid"] = a.ProjectID
	}
	return fields
}

// FileSpec describes one file in a batched registration call.
type FileSpec struct {
	Name     string `json:"name"`
	FileType string `json:"filetype"`
	FileSize int64  `json:"filesize"`
	Parts    int    `json:"parts"`
}

// FileReference is the server's answer for one registered file: its asset id
// and one pre-signed upload URL per part, in part order.
type FileReference struct {
	ID       string   `json:"id"`
	PartURLs []string `json:"multipart_urls"`
}

// Folder is a node in a project's folder hierarchy.
type Folder struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Folders []Folder `json:"folders,omitempty"`
}

// Project is a top-level workspace that owns a folder tree.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RootFolder Folder `json:"root_folder"`
}

// UserData lists the projects visible to the authenticated user.
type UserData struct {
	Projects []Project `json:"projects"`
}

// Asset is the server-side record for an uploaded or in-progress file.
type Asset struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	FileSize int64     `json:"filesize"`
	Comments []Comment `json:"comments,omitempty"`
}

// Comment is a timestamped annotation on an asset. Draw holds an optional
// freehand drawing payload that is passed through untouched.
type Comment struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Text      string          `json:"text"`
	Timecode  float64         `json:"timecode"`
	CreatedAt time.Time       `json:"created_at"`
	Draw      json.RawMessage `json:"draw,omitempty"`
}
