package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// aeTitlePattern matches a legal application entity title: 1-16 characters
// drawn from letters, digits, space and underscore.
var aeTitlePattern = regexp.MustCompile(`^[A-Za-z0-9_ ]{1,16}$`)

// ValidAETitle reports whether s is an acceptable AE title. All-space titles
// are rejected even though each character is individually legal.
func ValidAETitle(s string) bool {
	return aeTitlePattern.MatchString(s) && strings.TrimSpace(s) != ""
}

// EndpointConfig holds the remote PACS connection parameters. It doubles as
// the viper `endpoint` config section, which is why it carries mapstructure
// tags alongside json.
type EndpointConfig struct {
	// Host is the PACS hostname or address.
	Host string `mapstructure:"host" json:"host"`

	// Port is the PACS TCP port (the registered DICOM port is 104).
	Port int `mapstructure:"port" json:"port"`

	// CallingAETitle identifies this application to the peer.
	CallingAETitle string `mapstructure:"calling_ae_title" json:"calling_ae_title"`

	// CalledAETitle identifies the peer application entity.
	CalledAETitle string `mapstructure:"called_ae_title" json:"called_ae_title"`

	// Timeout bounds connect and response waits per operation.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`

	// UseTLS wraps the association in TLS with standard verification.
	UseTLS bool `mapstructure:"use_tls" json:"use_tls"`
}

// Address returns the peer address in host:port form.
func (e *EndpointConfig) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Validate checks the endpoint invariants. The network client calls this
// again before dialing so a config bypassing the boundary is still rejected.
func (e *EndpointConfig) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return ErrHostRequired
	}
	if e.Port < 1 || e.Port > 65535 {
		return ErrInvalidPort
	}
	if !ValidAETitle(e.CallingAETitle) {
		return fmt.Errorf("calling_ae_title %q: %w", e.CallingAETitle, ErrInvalidAETitle)
	}
	if !ValidAETitle(e.CalledAETitle) {
		return fmt.Errorf("called_ae_title %q: %w", e.CalledAETitle, ErrInvalidAETitle)
	}
	if e.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}
