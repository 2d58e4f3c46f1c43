package probe

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/target"
)

var tg = target.MustParse("http://app.test/shop/")

func TestBuild_Query(t *testing.T) {
	p := InjectionPoint{Path: "items?sort=asc", Parameter: "id", Location: Query, Extra: url.Values{"page": {"2"}}}
	req := Build(tg, p, "1' OR '1'='1", "sqli/error")

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "/shop/items", u.Path)
	assert.Equal(t, "1' OR '1'='1", u.Query().Get("id"))
	assert.Equal(t, "asc", u.Query().Get("sort"))
	assert.Equal(t, "2", u.Query().Get("page"))
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "sqli/error", req.Tag)
}

func TestBuild_Form(t *testing.T) {
	p := InjectionPoint{Path: "/login", Parameter: "user", Location: Form, Extra: url.Values{"pass": {"x"}}}
	req := Build(tg, p, "admin'--", "t")

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, defaults.ContentTypeForm, req.ContentType)
	form, err := url.ParseQuery(string(req.Body))
	require.NoError(t, err)
	assert.Equal(t, "admin'--", form.Get("user"))
	assert.Equal(t, "x", form.Get("pass"))
	assert.Equal(t, "http://app.test/login", req.URL)
}

func TestBuild_PathHeaderCookie(t *testing.T) {
	req := Build(tg, InjectionPoint{Path: "api/users/{id}", Parameter: "id", Location: Path}, "42", "t")
	assert.Equal(t, "http://app.test/shop/api/users/42", req.URL)

	auth := http.Header{"Authorization": {"Bearer abc"}}
	req = Build(tg, InjectionPoint{Path: "/", Parameter: "X-Forwarded-Host", Location: Header, Header: auth}, "evil.test", "t")
	assert.Equal(t, "evil.test", req.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	req.Header.Set("Authorization", "changed")
	assert.Equal(t, "Bearer abc", auth.Get("Authorization"), "point headers are copied")

	req = Build(tg, InjectionPoint{Path: "/", Parameter: "lang", Location: Cookie}, "en", "t")
	require.Len(t, req.Cookies, 1)
	assert.Equal(t, "lang", req.Cookies[0].Name)
}

func TestBuild_CookieValue(t *testing.T) {
	p := InjectionPoint{Path: "/", Parameter: "sid", Location: Cookie}

	req := Build(tg, p, "1' OR '1'='1", "t")
	assert.Equal(t, url.QueryEscape("1' OR '1'='1"), req.Cookies[0].Value, "spaces force escaping")

	req = Build(tg, p, "1'--", "t")
	assert.Equal(t, "1'--", req.Cookies[0].Value, "cookie-octets are sent verbatim")

	req = Build(tg, p, `<svg/onload=alert(1)>`, "t")
	assert.Equal(t, `<svg/onload=alert(1)>`, req.Cookies[0].Value)

	req = Build(tg, p, `a"b`, "t")
	assert.Equal(t, "a%22b", req.Cookies[0].Value)
}

func TestBuildEncoded(t *testing.T) {
	q := InjectionPoint{Path: "view", Parameter: "file", Location: Query, Extra: url.Values{"v": {"1"}}}
	req, ok := BuildEncoded(tg, q, "..%2f..%2fetc/passwd%00", "t")
	require.True(t, ok)
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Contains(t, u.RawQuery, "file=..%2f..%2fetc/passwd%00")
	assert.Equal(t, "../../etc/passwd\x00", u.Query().Get("file"))
	assert.Equal(t, "1", u.Query().Get("v"))

	f := InjectionPoint{Path: "/view", Parameter: "file", Location: Form}
	req, ok = BuildEncoded(tg, f, "%2e%2e%2fetc/passwd", "t")
	require.True(t, ok)
	form, err := url.ParseQuery(string(req.Body))
	require.NoError(t, err)
	assert.Equal(t, "../etc/passwd", form.Get("file"))

	pp := InjectionPoint{Path: "files/{name}", Parameter: "name", Location: Path}
	req, ok = BuildEncoded(tg, pp, "..%252fetc%252fpasswd", "t")
	require.True(t, ok)
	assert.Equal(t, "http://app.test/shop/files/..%252fetc%252fpasswd", req.URL)

	h := InjectionPoint{Path: "/", Parameter: "X-File", Location: Header}
	req, ok = BuildEncoded(tg, h, "..%2fetc/passwd", "t")
	require.True(t, ok)
	assert.Equal(t, "../etc/passwd", req.Header.Get("X-File"))

	_, ok = BuildEncoded(tg, h, "etc/passwd%00", "t")
	assert.False(t, ok, "a null byte cannot travel in a header")
}

func TestInjectionPoint_Validate(t *testing.T) {
	assert.NoError(t, InjectionPoint{Path: "/", Parameter: "q", Location: Query}.Validate())
	assert.ErrorIs(t, InjectionPoint{Parameter: "q", Location: Query}.Validate(), ErrInvalidPoint)
	assert.ErrorIs(t, InjectionPoint{Path: "/", Location: Query}.Validate(), ErrInvalidPoint)
	assert.ErrorIs(t, InjectionPoint{Path: "/", Parameter: "q", Location: "json"}.Validate(), ErrInvalidPoint)
	assert.ErrorIs(t, InjectionPoint{Path: "/users/1", Parameter: "id", Location: Path}.Validate(), ErrInvalidPoint)
}

func TestInjectionPoint_Display(t *testing.T) {
	p := InjectionPoint{Path: "/search", Parameter: "q", Location: Query}
	assert.Equal(t, "GET /search [query:q]", p.Display())
	assert.Equal(t, "/search", p.EndpointPath(tg))
}

func TestSimilarity(t *testing.T) {
	a := []byte("<ul><li>apple</li> <li>banana</li> <li>cherry</li></ul> total 3")
	assert.Equal(t, 1.0, Similarity(a, a))
	assert.Greater(t, Similarity(a, []byte("<ul><li>apple</li> <li>banana</li> <li>cherry</li></ul> total 4")), 0.7)
	assert.Less(t, Similarity(a, []byte("no results found")), 0.2)
	assert.Equal(t, 0.0, Similarity(a, nil))
	assert.True(t, Similar(a, a))
}

func TestLengthDelta(t *testing.T) {
	assert.Equal(t, 0.0, LengthDelta([]byte("abcd"), []byte("wxyz")))
	assert.Equal(t, 0.5, LengthDelta([]byte("ab"), []byte("abcd")))
}

func TestSignals(t *testing.T) {
	ok := &httpclient.Response{StatusCode: 200, Body: []byte(`{"id":1,"email":"a@b.c"}`)}
	login := &httpclient.Response{StatusCode: 200, Body: []byte(`<form><input type="password"></form>`)}
	denied := &httpclient.Response{StatusCode: 200, Body: []byte("Access Denied")}
	empty := &httpclient.Response{StatusCode: 200, Body: []byte("  ")}

	assert.True(t, Accessible(ok))
	assert.False(t, Accessible(login))
	assert.False(t, Accessible(denied))
	assert.False(t, Accessible(empty))

	assert.True(t, Denied(&httpclient.Response{StatusCode: 401}))
	assert.True(t, Denied(&httpclient.Response{StatusCode: 302}))
	assert.True(t, Denied(login))
	assert.False(t, Denied(ok))
}

func TestGap(t *testing.T) {
	assert.NoError(t, Gap("x", nil))
	err := Gap("sqli", budget.ErrExhausted)
	assert.True(t, errors.Is(err, budget.ErrExhausted))
	assert.Contains(t, err.Error(), "sqli")
	assert.True(t, httpclient.IsGap(Gap("x", context.Canceled)))
}

func TestIdentity(t *testing.T) {
	anon := Identity{}
	assert.True(t, anon.IsAnonymous())
	assert.Equal(t, "anonymous", anon.Label())

	id := Bearer("alice", "t0k")
	assert.False(t, id.IsAnonymous())
	assert.Equal(t, "alice", id.Label())

	req := id.Request("", "http://app.test/admin", "t")
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "Bearer t0k", req.Header.Get("Authorization"))

	req.Header.Set("Authorization", "changed")
	assert.Equal(t, "Bearer t0k", id.Header.Get("Authorization"), "request headers are a copy")
}
