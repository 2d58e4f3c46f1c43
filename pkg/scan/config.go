package scan

import (
	"github.com/waftester/webscan/pkg/calibration"
	"github.com/waftester/webscan/pkg/discovery"
	"github.com/waftester/webscan/pkg/lfi"
	"github.com/waftester/webscan/pkg/openredirect"
	"github.com/waftester/webscan/pkg/params"
	"github.com/waftester/webscan/pkg/session"
	"github.com/waftester/webscan/pkg/sqli"
)

// Config holds the tuning of every component a session builds.
type Config struct {
	Calibration  calibration.Config  `json:"calibration" yaml:"calibration"`
	Discovery    discovery.Config    `json:"discovery" yaml:"discovery"`
	SQLi         sqli.Config         `json:"sqli" yaml:"sqli"`
	LFI          lfi.Config          `json:"lfi" yaml:"lfi"`
	OpenRedirect openredirect.Config `json:"open_redirect" yaml:"open_redirect"`
	Params       params.Config       `json:"params" yaml:"params"`
	Session      session.Config      `json:"session" yaml:"session"`

	// IDORThreshold is the similarity above which two records count as
	// the same resource. Zero keeps the probe's default.
	IDORThreshold float64 `json:"idor_threshold,omitempty" yaml:"idor_threshold,omitempty"`

	// AuthTechniques restricts auth-bypass to the named techniques.
	AuthTechniques []string `json:"auth_techniques,omitempty" yaml:"auth_techniques,omitempty"`
}

// DefaultConfig returns every component's defaults.
func DefaultConfig() Config {
	return Config{
		Calibration:  calibration.DefaultConfig(),
		Discovery:    discovery.DefaultConfig(),
		SQLi:         sqli.DefaultConfig(),
		LFI:          lfi.DefaultConfig(),
		OpenRedirect: openredirect.DefaultConfig(),
		Params:       params.DefaultConfig(),
		Session:      session.DefaultConfig(),
	}
}
