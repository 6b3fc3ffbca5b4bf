package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CredentialError reports that no usable credentials could be resolved.
// It is a configuration problem and is never retried.
type CredentialError struct {
	Reason  CredentialErrorReason
	Message string
	Err     error
}

// CredentialErrorReason categorizes resolution failures.
type CredentialErrorReason int

const (
	// ReasonNoSource indicates neither inline nor file credentials are configured.
	ReasonNoSource CredentialErrorReason = iota
	// ReasonInvalid indicates every configured source failed to decode or validate.
	ReasonInvalid
	// ReasonScopeMismatch indicates the configured scopes are unusable.
	ReasonScopeMismatch
)

func (r CredentialErrorReason) String() string {
	switch r {
	case ReasonNoSource:
		return "no_source"
	case ReasonInvalid:
		return "invalid"
	case ReasonScopeMismatch:
		return "scope_mismatch"
	default:
		return "unknown"
	}
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// keyFile is the subset of a Google credential file checked before handing
// it to the oauth2 library.
type keyFile struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// parseKeyFile validates the structure of credential JSON.
func parseKeyFile(raw []byte) (*keyFile, error) {
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("parse credentials JSON: %w", err)
	}

	var missing []string
	switch kf.Type {
	case "":
		return nil, fmt.Errorf("credentials JSON has no type field")
	case "service_account":
		if kf.ClientEmail == "" {
			missing = append(missing, "client_email")
		}
		if !strings.Contains(kf.PrivateKey, "PRIVATE KEY") {
			missing = append(missing, "private_key")
		}
	case "authorized_user":
		if kf.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if kf.ClientSecret == "" {
			missing = append(missing, "client_secret")
		}
		if kf.RefreshToken == "" {
			missing = append(missing, "refresh_token")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s credentials missing %s", kf.Type, strings.Join(missing, ", "))
	}
	return &kf, nil
}
