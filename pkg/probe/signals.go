package probe

import (
	"bytes"

	"github.com/waftester/webscan/pkg/httpclient"
)

// deniedMarkers show up in 2xx pages that actually refuse access.
var deniedMarkers = [][]byte{
	[]byte("access denied"),
	[]byte("unauthorized"),
	[]byte("forbidden"),
	[]byte("not authorized"),
	[]byte("permission denied"),
	[]byte("not allowed"),
	[]byte("invalid token"),
	[]byte("login required"),
	[]byte("authentication required"),
	[]byte("you do not have permission"),
	[]byte("insufficient privileges"),
	[]byte("requires authentication"),
}

// loginMarkers identify a login form served in place of the resource.
var loginMarkers = [][]byte{
	[]byte(`type="password"`),
	[]byte(`type='password'`),
	[]byte("name=\"password\""),
	[]byte("sign in to"),
	[]byte("log in to"),
	[]byte("please log in"),
	[]byte("please sign in"),
	[]byte("forgot password"),
}

func containsAny(body []byte, markers [][]byte) bool {
	lower := bytes.ToLower(body)
	for _, m := range markers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// LooksDenied reports an access-denied page, whatever its status.
func LooksDenied(body []byte) bool { return containsAny(body, deniedMarkers) }

// LooksLikeLogin reports a login page.
func LooksLikeLogin(body []byte) bool { return containsAny(body, loginMarkers) }

// Denied reports a response that refused access: 401, 403, a redirect to
// a login page, or a 2xx page that says so.
func Denied(resp *httpclient.Response) bool {
	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return true
	case resp.IsRedirect():
		return true
	case resp.IsSuccess():
		return LooksDenied(resp.Body) || LooksLikeLogin(resp.Body)
	}
	return false
}

// Accessible reports a response that served real content: 2xx, non-empty,
// neither a denial nor a login page.
func Accessible(resp *httpclient.Response) bool {
	return resp.IsSuccess() && len(bytes.TrimSpace(resp.Body)) > 0 &&
		!LooksDenied(resp.Body) && !LooksLikeLogin(resp.Body)
}
