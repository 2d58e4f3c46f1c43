package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/brokenauth"
	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/params"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/scan"
)

// inputFlags are the target and capability inputs shared by scan,
// discover and probe. Values set here override the profile.
type inputFlags struct {
	target     string
	words      []string
	wordlist   string
	profile    string
	extensions []string
	points     []string
	endpoints  []string
	paramPaths []string
}

func (in *inputFlags) register(cmd *cobra.Command, discovery, probes bool) {
	f := cmd.Flags()
	f.StringVarP(&in.target, "target", "u", "", "Target base URL (or first argument)")
	if discovery {
		f.StringSliceVar(&in.words, "words", nil, "Words to try, comma-separated")
		f.StringVarP(&in.wordlist, "wordlist", "w", "", "Wordlist file or builtin:<name>")
		f.StringVar(&in.profile, "profile", "", "Built-in word profile: small, tiny")
		f.StringSliceVarP(&in.extensions, "extensions", "e", nil, "Extensions to append, e.g. .bak,.php")
	}
	if probes {
		f.StringArrayVarP(&in.points, "point", "p", nil, `Injection point "location:path:parameter[=original]" (repeatable)`)
		f.StringArrayVar(&in.endpoints, "endpoint", nil, "Protected path for auth-bypass (repeatable)")
		f.StringArrayVar(&in.paramPaths, "param-path", nil, `Path searched by params and headers, "[form:]path" (repeatable)`)
	}
}

// apply merges the flags and the positional target into p.
func (in *inputFlags) apply(cmd *cobra.Command, args []string, p *scan.Params) error {
	flags := cmd.Flags()
	switch {
	case len(args) > 0:
		p.Target = args[len(args)-1]
	case flags.Changed("target"):
		p.Target = in.target
	}
	if p.Target == "" {
		return fmt.Errorf("%w: a target is required", scan.ErrInvalidParams)
	}

	if len(in.words) > 0 {
		p.Words = in.words
	}
	if in.wordlist != "" {
		p.Wordlist = in.wordlist
	}
	if in.profile != "" {
		p.Profile = in.profile
	}
	if len(in.extensions) > 0 {
		p.Extensions = in.extensions
	}
	for _, s := range in.points {
		pt, err := parsePoint(s)
		if err != nil {
			return err
		}
		p.Points = append(p.Points, pt)
	}
	for _, path := range in.endpoints {
		p.AuthEndpoints = append(p.AuthEndpoints, brokenauth.Endpoint{Path: path})
	}
	for _, s := range in.paramPaths {
		ep, err := parseParamPath(s)
		if err != nil {
			return err
		}
		p.ParamEndpoints = append(p.ParamEndpoints, ep)
	}
	return nil
}

// parseParamPath reads "[location:]path", e.g. "/search" or "form:/login".
func parseParamPath(s string) (params.Endpoint, error) {
	ep := params.Endpoint{Path: s}
	if loc, path, ok := strings.Cut(s, ":"); ok {
		if l := probe.Location(strings.ToLower(loc)); l.IsValid() {
			ep = params.Endpoint{Path: path, Location: l}
		}
	}
	if err := ep.Validate(); err != nil {
		return params.Endpoint{}, fmt.Errorf("%w: --param-path %q: %w", config.ErrInvalidConfig, s, err)
	}
	return ep, nil
}

// parsePoint reads "location:path:parameter[=original]", e.g.
// "query:/search:q=shoes" or "path:/item/{id}:id=7".
func parsePoint(s string) (probe.InjectionPoint, error) {
	bad := func(why string) (probe.InjectionPoint, error) {
		return probe.InjectionPoint{}, fmt.Errorf("%w: --point %q: %s", config.ErrInvalidConfig, s, why)
	}
	loc, rest, ok := strings.Cut(s, ":")
	if !ok {
		return bad("want location:path:parameter")
	}
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return bad("want location:path:parameter")
	}
	path, param := rest[:i], rest[i+1:]
	param, original, _ := strings.Cut(param, "=")

	pt := probe.InjectionPoint{
		Path:      path,
		Parameter: param,
		Location:  probe.Location(strings.ToLower(loc)),
		Original:  original,
	}
	if err := pt.Validate(); err != nil {
		return bad(err.Error())
	}
	return pt, nil
}
