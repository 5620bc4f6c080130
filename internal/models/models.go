package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RootParentID is the wire and storage form of the root parent
const RootParentID = "0"

// FileType is the kind of a FileEntry
type FileType string

const (
	FileTypeFolder FileType = "folder"
	FileTypeFile   FileType = "file"
	FileTypeImage  FileType = "image"
)

// Valid reports whether t is one of the accepted kinds
func (t FileType) Valid() bool {
	switch t {
	case FileTypeFolder, FileTypeFile, FileTypeImage:
		return true
	}
	return false
}

// HasContent reports whether entries of this type carry a blob
func (t FileType) HasContent() bool {
	return t == FileTypeFile || t == FileTypeImage
}

// ParentRef is either the root or a reference to a folder entry.
// The zero value is the root.
type ParentRef struct {
	id string
}

// Root is the parent of top-level entries
var Root = ParentRef{}

// FolderRef references the folder entry with the given id
func FolderRef(id string) ParentRef {
	if id == RootParentID {
		return Root
	}
	return ParentRef{id: id}
}

// ParseParentRef maps the wire form to a ParentRef; "" and "0" are the root
func ParseParentRef(s string) ParentRef {
	if s == "" {
		return Root
	}
	return FolderRef(s)
}

// IsRoot reports whether p is the root
func (p ParentRef) IsRoot() bool {
	return p.id == ""
}

// ID returns the referenced folder id, empty for the root
func (p ParentRef) ID() string {
	return p.id
}

func (p ParentRef) String() string {
	if p.IsRoot() {
		return RootParentID
	}
	return p.id
}

// MarshalJSON renders the root as "0" and folders by id
func (p ParentRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a string, the number 0, or null
func (p *ParentRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = Root
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = ParseParentRef(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parentId must be a string or a number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("parentId must be an integer: %w", err)
	}
	*p = ParseParentRef(n.String())
	return nil
}

// User is an account able to log in
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// FileEntry is a folder, file or image owned by a user
type FileEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      FileType  `json:"type"`
	IsPublic  bool      `json:"isPublic"`
	ParentID  ParentRef `json:"parentId"`
	LocalPath string    `json:"-"`
}

// IsFolder reports whether the entry is a folder
func (f *FileEntry) IsFolder() bool {
	return f.Type == FileTypeFolder
}

// ThumbnailWidths are the widths, in pixels, of the derivatives generated for images
var ThumbnailWidths = []int{500, 250, 100}

// IsThumbnailWidth reports whether width is one of ThumbnailWidths
func IsThumbnailWidth(width int) bool {
	for _, w := range ThumbnailWidths {
		if w == width {
			return true
		}
	}
	return false
}

// ThumbnailPath returns the location of the derivative of localPath at width
func ThumbnailPath(localPath string, width int) string {
	return localPath + "_" + strconv.Itoa(width)
}

// ThumbnailJob asks the worker to derive thumbnails of an uploaded image
type ThumbnailJob struct {
	FileID string `json:"fileId"`
	UserID string `json:"userId"`
}
