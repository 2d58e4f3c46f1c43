package discovery

import (
	"bytes"
	"strings"

	"github.com/waftester/webscan/pkg/httpclient"
)

var bodyMarkers = []struct {
	tag    string
	needle string
}{
	{"admin", "admin"},
	{"login", "login"},
	{"password", "password"},
	{"token", "token"},
	{"api", "api"},
	{"config", "config"},
	{"backup", "backup"},
	{"git", "[core]"},
	{"git", "ref: refs/"},
	{"env", "db_password="},
	{"env", "secret_key="},
	{"sql-error", "sql syntax"},
	{"sql-error", "sqlstate"},
}

var fingerprintHeaders = []string{"Server", "X-Powered-By", "X-AspNet-Version"}

// interestingTags labels content that makes a hit worth a closer look.
func interestingTags(resp *httpclient.Response) []string {
	var tags []string
	seen := make(map[string]struct{})
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}

	body := bytes.ToLower(resp.Body)
	for _, m := range bodyMarkers {
		if bytes.Contains(body, []byte(m.needle)) {
			add(m.tag)
		}
	}
	for _, h := range fingerprintHeaders {
		if v := resp.Header.Get(h); v != "" {
			add(strings.ToLower(h) + ":" + v)
		}
	}
	return tags
}
