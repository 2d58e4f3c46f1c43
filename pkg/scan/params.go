package scan

import (
	"github.com/waftester/webscan/pkg/accesscontrol"
	"github.com/waftester/webscan/pkg/brokenauth"
	"github.com/waftester/webscan/pkg/idor"
	"github.com/waftester/webscan/pkg/params"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/session"
)

// Params carries the inputs of every capability. Each capability reads the
// fields it needs and ignores the rest.
type Params struct {
	Target string `json:"target" yaml:"target"`

	// Discovery. Words take precedence over Wordlist, which takes
	// precedence over Profile.
	Words      []string `json:"words,omitempty" yaml:"words,omitempty"`
	Wordlist   string   `json:"wordlist,omitempty" yaml:"wordlist,omitempty"`
	Profile    string   `json:"profile,omitempty" yaml:"profile,omitempty"`
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`

	// Injection probes (sqli, xss, lfi, open-redirect).
	Points []probe.InjectionPoint `json:"points,omitempty" yaml:"points,omitempty"`

	// Hidden parameter and header search (params, headers).
	ParamEndpoints []params.Endpoint `json:"param_endpoints,omitempty" yaml:"param_endpoints,omitempty"`

	AuthEndpoints []brokenauth.Endpoint  `json:"auth_endpoints,omitempty" yaml:"auth_endpoints,omitempty"`
	IDOR          []idor.Request         `json:"idor,omitempty" yaml:"idor,omitempty"`
	Sessions      []session.Request      `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Privilege     *accesscontrol.Request `json:"privilege,omitempty" yaml:"privilege,omitempty"`
}

func (p Params) hasWords() bool {
	return len(p.Words) > 0 || p.Wordlist != "" || p.Profile != ""
}
