package utils

// Upload thresholds (binary units)
const (
	UploadSimpleMaxBytes = 5 * 1024 * 1024 // 5 MiB
	UploadChunkSize      = 8 * 1024 * 1024 // 8 MiB
	S3PartSize           = 8 * 1024 * 1024 // 8 MiB
)

// OAuth scopes
const (
	ScopeDriveFull         = "https://www.googleapis.com/auth/drive"
	ScopeStorageReadWrite  = "https://www.googleapis.com/auth/devstorage.read_write"
	ScopeStorageFullAccess = "https://www.googleapis.com/auth/devstorage.full_control"
)

// ScopesDriveSync are the scopes requested for a Drive session
var ScopesDriveSync = []string{ScopeDriveFull}

// Retry configuration
const (
	DefaultMaxRetries       = 8
	DefaultRetryDelayMs     = 1000
	DefaultRetryCeiling     = 64
	DefaultRetryGrowthLimit = 4.0
	MaxRetryDelayMs         = 32000
)

// Listing limits
const (
	DefaultPageSize  = 1000
	DefaultBatchSize = 1000
	MaxRemoteTries   = 5
)

// Schema version
const SchemaVersion = "1.0"

// DefaultRemoteCommand is the name of this tool on SSH hosts
const DefaultRemoteCommand = "syncapp"

// PseudoRootFolderName is a provider-managed folder that is never the Drive root
const PseudoRootFolderName = "Chrome Syncable FileSystem"

// Google Workspace MIME types
const (
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
	MimeTypeDrawing      = "application/vnd.google-apps.drawing"
	MimeTypeSite         = "application/vnd.google-apps.site"
	MimeTypeForm         = "application/vnd.google-apps.form"
	MimeTypeMap          = "application/vnd.google-apps.map"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	MimeTypeOctetStream  = "application/octet-stream"
)

// ExportMappings maps Workspace MIME types to the format they are exported as
var ExportMappings = map[string]string{
	MimeTypeDocument:     "application/vnd.oasis.opendocument.text",
	MimeTypePresentation: "application/pdf",
	MimeTypeSpreadsheet:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	MimeTypeDrawing:      "image/png",
	MimeTypeSite:         "text/plain",
}

// ExportExtensions maps export MIME types to file extensions
var ExportExtensions = map[string]string{
	"application/vnd.oasis.opendocument.text": "odt",
	"image/png":       "png",
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"text/x-csrc":     "C",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
}

// IsUnexportableMimeType reports whether Drive refuses to export the type
func IsUnexportableMimeType(mimeType string) bool {
	switch mimeType {
	case MimeTypeForm, MimeTypeMap, MimeTypeFolder:
		return true
	}
	return false
}

// ExportMimeType returns the export target for a Workspace type
func ExportMimeType(mimeType string) (string, bool) {
	t, ok := ExportMappings[mimeType]
	return t, ok
}
