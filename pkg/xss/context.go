package xss

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Context is where in the document a value is reflected.
type Context string

const (
	ContextHTML      Context = "html"
	ContextAttribute Context = "attribute"
	ContextScript    Context = "script"
)

// Contexts tokenizes body and returns the distinct contexts in which marker
// appears, in document order. Reflections inside comments, style blocks
// and textareas are not executable and are skipped.
func Contexts(body []byte, marker string) []Context {
	if !bytes.Contains(body, []byte(marker)) {
		return nil
	}
	var (
		out   []Context
		seen  = map[Context]bool{}
		inert string
	)
	add := func(c Context) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			for _, a := range tok.Attr {
				if strings.Contains(a.Val, marker) || strings.Contains(a.Key, marker) {
					add(ContextAttribute)
				}
			}
			if strings.Contains(tok.Data, marker) {
				add(ContextHTML)
			}
			switch tok.Data {
			case "script", "style", "textarea", "title":
				inert = tok.Data
			}
		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == inert {
				inert = ""
			}
		case html.TextToken:
			if !bytes.Contains(z.Text(), []byte(marker)) {
				continue
			}
			switch inert {
			case "script":
				add(ContextScript)
			case "":
				add(ContextHTML)
			}
		}
	}
}
