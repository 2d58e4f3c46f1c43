package probe

import (
	"net/http"
	"slices"

	"github.com/waftester/webscan/pkg/httpclient"
)

// Identity is a set of credentials attached to requests: an Authorization
// header, an API key header or session cookies. The zero value is
// anonymous.
type Identity struct {
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Header  http.Header    `json:"header,omitempty" yaml:"header,omitempty"`
	Cookies []*http.Cookie `json:"-" yaml:"-"`
}

// Bearer returns an identity sending "Authorization: Bearer token".
func Bearer(name, token string) Identity {
	return Identity{Name: name, Header: http.Header{"Authorization": {"Bearer " + token}}}
}

// IsAnonymous reports whether the identity carries no credentials.
func (id Identity) IsAnonymous() bool {
	return len(id.Header) == 0 && len(id.Cookies) == 0
}

// Label names the identity in findings.
func (id Identity) Label() string {
	switch {
	case id.Name != "":
		return id.Name
	case id.IsAnonymous():
		return "anonymous"
	default:
		return "authenticated"
	}
}

// Request builds a request for url carrying the identity's credentials.
func (id Identity) Request(method, url, tag string) *httpclient.Request {
	if method == "" {
		method = http.MethodGet
	}
	h := id.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &httpclient.Request{
		Method:  method,
		URL:     url,
		Header:  h,
		Cookies: slices.Clone(id.Cookies),
		Tag:     tag,
	}
}
