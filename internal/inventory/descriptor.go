package inventory

import (
	"fmt"
	"strings"
	"time"
)

// RequestState is the compressed state of the merge requests matching one
// title template.
type RequestState int

const (
	RequestStateNone RequestState = iota
	RequestStateOpened
	RequestStateClosed
	RequestStateMerged
)

func (s RequestState) String() string {
	switch s {
	case RequestStateOpened:
		return "opened"
	case RequestStateClosed:
		return "closed"
	case RequestStateMerged:
		return "merged"
	default:
		return "none"
	}
}

func (s RequestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RequestState) UnmarshalText(b []byte) error {
	v, ok := ParseRequestState(string(b))
	if !ok && string(b) != "none" && len(b) > 0 {
		return fmt.Errorf("unknown request state %q", string(b))
	}
	*s = v
	return nil
}

// ParseRequestState maps a GitLab merge request state. Unknown states such as
// "locked" return false.
func ParseRequestState(raw string) (RequestState, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "opened":
		return RequestStateOpened, true
	case "closed":
		return RequestStateClosed, true
	case "merged":
		return RequestStateMerged, true
	default:
		return RequestStateNone, false
	}
}

// Pending reports whether a request is open or was declined; either way we
// must not propose again.
func (s RequestState) Pending() bool {
	return s == RequestStateOpened || s == RequestStateClosed
}

// RepositoryDescriptor is the typed view of one GitLab project. It is built
// fresh every run and never persisted.
type RepositoryDescriptor struct {
	ID                int64     `json:"id"`
	FullPath          string    `json:"full_path"`
	Name              string    `json:"name"`
	Group             string    `json:"group"`
	NameWithNamespace string    `json:"name_with_namespace"`
	MRsEnabled        bool      `json:"mrs_enabled"`
	CreatedAt         time.Time `json:"created_at"`

	HasConfigFile bool `json:"has_config_file"`
	HasSecret     bool `json:"has_secret"`

	// ConfigContent is the raw config file text, empty when absent.
	ConfigContent string `json:"-"`

	ConfigRequestState RequestState `json:"config_request_state"`
	SecretRequestState RequestState `json:"secret_request_state"`
	AlertRequestState  RequestState `json:"alert_request_state"`
}

// Complete reports whether both the config file and its secret are in place.
func (d RepositoryDescriptor) Complete() bool {
	return d.HasConfigFile && d.HasSecret
}

// SentryProjectName drops the team group and joins the remaining path
// segments with "-": team-a/backend/api -> backend-api.
func (d RepositoryDescriptor) SentryProjectName() string {
	parts := strings.Split(strings.Trim(d.FullPath, "/"), "/")
	if len(parts) <= 1 {
		return d.Name
	}
	return strings.Join(parts[1:], "-")
}
