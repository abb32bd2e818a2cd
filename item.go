package cloudkit

import "time"

// FileType classifies an Item the way a file browser would need to render
// it, normalized across every backend's own MIME/kind taxonomy.
type FileType string

const (
	FileTypeDirectory FileType = "directory"
	FileTypeAudio     FileType = "audio"
	FileTypeVideo     FileType = "video"
	FileTypeImage     FileType = "image"
	FileTypeDocument  FileType = "document"
	FileTypeUnknown   FileType = "unknown"
)

// Item is the uniform file/folder record every provider adapter normalizes
// its native representation into. Items are value objects; identity is
// (provider label, ID), never a pointer identity.
type Item struct {
	ID       string
	Filename string
	Type     FileType
	// Size is nil when unknown (e.g. a live stream from a source without
	// Content-Length).
	Size *uint64
	// Timestamp is nil when the provider doesn't report one.
	Timestamp *time.Time
	// URL is a pre-signed direct-consumption URL, when the provider can
	// hand one out without a proxied download.
	URL string
}

// IsDir reports whether the item represents a directory.
func (i Item) IsDir() bool {
	return i.Type == FileTypeDirectory
}

// DirectoryPage is one page of a directory listing (§4.5 list_directory_page).
type DirectoryPage struct {
	Items         []Item
	NextPageToken string
}

// GeneralData is the account-level summary every provider's
// get_general_data operation returns.
type GeneralData struct {
	Username   string
	SpaceUsed  uint64
	SpaceTotal uint64
}
