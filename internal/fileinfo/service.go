package fileinfo

import "fmt"

// ServiceType identifies the backend an object lives on
type ServiceType string

const (
	ServiceLocal    ServiceType = "local"
	ServiceS3       ServiceType = "s3"
	ServiceGDrive   ServiceType = "gdrive"
	ServiceGCS      ServiceType = "gs"
	ServiceSSH      ServiceType = "ssh"
	ServiceOneDrive ServiceType = "onedrive"
)

var schemeToService = map[string]ServiceType{
	"file":     ServiceLocal,
	"s3":       ServiceS3,
	"gdrive":   ServiceGDrive,
	"gs":       ServiceGCS,
	"ssh":      ServiceSSH,
	"onedrive": ServiceOneDrive,
}

// ServiceForScheme maps a URL scheme to its service type
func ServiceForScheme(scheme string) (ServiceType, error) {
	st, ok := schemeToService[scheme]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return st, nil
}

// ParseServiceType parses the persisted service type name
func ParseServiceType(s string) (ServiceType, error) {
	switch st := ServiceType(s); st {
	case ServiceLocal, ServiceS3, ServiceGDrive, ServiceGCS, ServiceSSH, ServiceOneDrive:
		return st, nil
	}
	return "", fmt.Errorf("unknown service type %q", s)
}

// Scheme returns the URL scheme used for this service
func (t ServiceType) Scheme() string {
	if t == ServiceLocal {
		return "file"
	}
	return string(t)
}

func (t ServiceType) String() string {
	return string(t)
}
