package openredirect

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RefreshTarget extracts the URL from a Refresh value such as
// "0; url=https://example.org/".
func RefreshTarget(v string) (string, bool) {
	_, rest, ok := strings.Cut(v, ";")
	if !ok {
		_, rest, ok = strings.Cut(v, ",")
		if !ok {
			return "", false
		}
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 4 || !strings.EqualFold(rest[:3], "url") {
		return "", false
	}
	rest = strings.TrimSpace(rest[3:])
	rest, ok = strings.CutPrefix(rest, "=")
	if !ok {
		return "", false
	}
	rest = strings.Trim(strings.TrimSpace(rest), `'"`)
	return rest, rest != ""
}

// MetaRefreshTargets returns the destinations of every
// <meta http-equiv="refresh"> tag in body.
func MetaRefreshTargets(body []byte) []string {
	if !bytes.Contains(bytes.ToLower(body), []byte("refresh")) {
		return nil
	}
	var out []string
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.DataAtom != atom.Meta {
			continue
		}
		var equiv, content string
		for _, a := range tok.Attr {
			switch strings.ToLower(a.Key) {
			case "http-equiv":
				equiv = a.Val
			case "content":
				content = a.Val
			}
		}
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			continue
		}
		if dest, ok := RefreshTarget(content); ok {
			out = append(out, dest)
		}
	}
}
