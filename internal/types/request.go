package types

// RequestType classifies a provider call for logging and error context
type RequestType string

const (
	RequestTypeList     RequestType = "list"
	RequestTypeGet      RequestType = "get"
	RequestTypeDownload RequestType = "download"
	RequestTypeUpload   RequestType = "upload"
	RequestTypeMutation RequestType = "mutation"
	RequestTypeChanges  RequestType = "changes"
	RequestTypeCommand  RequestType = "command"
)

// RequestContext carries tracing metadata for a single provider operation
type RequestContext struct {
	Service     string      `json:"service"`
	Session     string      `json:"session"`
	URL         string      `json:"url,omitempty"`
	ObjectIDs   []string    `json:"objectIds,omitempty"`
	RequestType RequestType `json:"requestType"`
	TraceID     string      `json:"traceId"`
}
