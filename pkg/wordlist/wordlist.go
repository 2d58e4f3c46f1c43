// Package wordlist holds the built-in discovery word lists and loads custom
// ones from files.
package wordlist

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownList is returned when a builtin: name does not exist.
var ErrUnknownList = errors.New("wordlist: unknown built-in list")

// Wordlist is a loaded, deduplicated list of words.
type Wordlist struct {
	Name   string   `json:"name"`
	Source string   `json:"source"`
	Words  []string `json:"words,omitempty"`
}

// Len returns the number of words.
func (w *Wordlist) Len() int { return len(w.Words) }

// Profile is a named word and extension set for quick scans.
type Profile struct {
	Words      []string
	Extensions []string
}

// Profiles returns the quick scan profiles keyed by name.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"tiny": {
			Words:      []string{"admin", "login", "config"},
			Extensions: []string{"", ".php", ".html"},
		},
		"small": {
			Words:      []string{"admin", "login", "config", "backup", "test", ".git", ".env"},
			Extensions: []string{"", ".php", ".html", ".asp", ".aspx"},
		},
	}
}

// ProfileNames lists the profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, 2)
	for n := range Profiles() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupProfile returns the named profile, falling back to "small".
func LookupProfile(name string) Profile {
	p, ok := Profiles()[strings.ToLower(name)]
	if !ok {
		return Profiles()["small"]
	}
	return p
}

var builtIn = map[string][]string{
	"common-dirs":   commonDirs,
	"common-files":  commonFiles,
	"api-endpoints": apiPaths,
	"backup-files":  backupFiles,
	"extensions":    extensions,
	"params":        params,
}

// BuiltIn returns a copy of the named built-in list.
func BuiltIn(name string) ([]string, error) {
	words, ok := builtIn[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
	return slices.Clone(words), nil
}

// BuiltInNames lists the available built-in lists, sorted.
func BuiltInNames() []string {
	names := make([]string, 0, len(builtIn))
	for n := range builtIn {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CommonFiles returns sensitive files worth requesting on any target.
func CommonFiles() []string { return slices.Clone(commonFiles) }

// APIPaths returns common API and service endpoint paths, relative to the
// target base.
func APIPaths() []string { return slices.Clone(apiPaths) }

// ParamNames returns candidate parameter names for hidden parameter
// discovery.
func ParamNames() []string { return slices.Clone(paramNames) }

// IsDirectoryWord reports whether word is commonly a directory name, so a
// hit on it is worth recursing into even without a trailing slash.
func IsDirectoryWord(word string) bool {
	_, ok := directoryWords[strings.ToLower(strings.Trim(word, "/"))]
	return ok
}

// Load reads a word list. "builtin:<name>" selects a built-in list; any
// other source is a file path, gzip-compressed when it ends in ".gz".
func Load(source string) (*Wordlist, error) {
	if name, ok := strings.CutPrefix(source, "builtin:"); ok {
		words, err := BuiltIn(name)
		if err != nil {
			return nil, err
		}
		return &Wordlist{Name: name, Source: source, Words: words}, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("wordlist: open: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(source, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("wordlist: gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	words, err := FromReader(r)
	if err != nil {
		return nil, err
	}
	return &Wordlist{Name: filepath.Base(source), Source: source, Words: words}, nil
}

// FromReader reads one word per line. Blank lines and lines starting with
// '#' are skipped; duplicates are dropped keeping first occurrence.
func FromReader(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wordlist: read: %w", err)
	}
	return Dedupe(words), nil
}

// NormalizeExtensions gives every non-empty extension a leading dot. The
// empty string stands for the bare word. A nil or empty input yields [""].
func NormalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return []string{""}
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return Dedupe(out)
}

// Expand crosses words with extensions: each word once bare (when "" is
// among the extensions) and once per extension. Order is word-major.
func Expand(words, exts []string) []string {
	exts = NormalizeExtensions(exts)
	out := make([]string, 0, len(words)*len(exts))
	for _, w := range words {
		w = strings.TrimPrefix(w, "/")
		if w == "" {
			continue
		}
		for _, e := range exts {
			out = append(out, w+e)
		}
	}
	return Dedupe(out)
}

// CaseVariants adds lower, upper and title-cased forms of each word, for
// targets served from case-sensitive file systems.
func CaseVariants(words []string) []string {
	title := cases.Title(language.English)
	lower := cases.Lower(language.English)
	upper := cases.Upper(language.English)
	out := make([]string, 0, len(words)*3)
	for _, w := range words {
		out = append(out, w, lower.String(w), upper.String(w), title.String(lower.String(w)))
	}
	return Dedupe(out)
}

// Dedupe removes duplicates keeping the first occurrence.
func Dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
