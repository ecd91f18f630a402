package engine

import "github.com/numberly/gitlab2sentry/internal/inventory"

// Action is the side effect a repository needs.
type Action int

const (
	ActionNone Action = iota
	ActionProposeConfig
	ActionProvisionAndProposeSecret
)

func (a Action) String() string {
	switch a {
	case ActionProposeConfig:
		return "propose_config"
	case ActionProvisionAndProposeSecret:
		return "provision_and_propose_secret"
	default:
		return "none"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Reasons double as counter names.
const (
	ReasonComplete      = "has_sentry"
	ReasonMRsDisabled   = "mr_disabled"
	ReasonSecretWaiting = "mr_dsn_waiting"
	ReasonSecretClosed  = "mr_dsn_closed"
	ReasonConfigWaiting = "mr_sentryclirc_waiting"
	ReasonConfigClosed  = "mr_sentryclirc_closed"
	ReasonUnhandled     = "not_in_g2s_cases"
	ReasonMissingSecret = "missing_dsn"
	ReasonMissingConfig = "missing_sentryclirc"
)

// Decision is the outcome of Decide.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Decide picks the next step for d. The first matching case wins.
func Decide(d inventory.RepositoryDescriptor) Decision {
	switch {
	case d.Complete():
		return Decision{ActionNone, ReasonComplete}
	case !d.MRsEnabled:
		return Decision{ActionNone, ReasonMRsDisabled}
	case d.HasConfigFile && !d.HasSecret:
		switch d.SecretRequestState {
		case inventory.RequestStateOpened:
			return Decision{ActionNone, ReasonSecretWaiting}
		case inventory.RequestStateClosed:
			return Decision{ActionNone, ReasonSecretClosed}
		}
		return Decision{ActionProvisionAndProposeSecret, ReasonMissingSecret}
	case !d.HasConfigFile:
		switch d.ConfigRequestState {
		case inventory.RequestStateOpened:
			return Decision{ActionNone, ReasonConfigWaiting}
		case inventory.RequestStateClosed:
			return Decision{ActionNone, ReasonConfigClosed}
		}
		return Decision{ActionProposeConfig, ReasonMissingConfig}
	}
	return Decision{ActionNone, ReasonUnhandled}
}
