package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/scan"
)

func (a *app) probeCmd() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "probe <capability> [target]",
		Short: "Run one vulnerability probe",
		Long: `Runs one vulnerability probe. Injection probes (sqli, xss, lfi,
open-redirect) take --point; params and headers take --param-path;
auth-bypass takes --endpoint. The idor, session and privilege-escalation
probes read their inputs from the --config profile.`,
		Example: `  webscan probe sqli -p "query:/item:id=1" https://app.example.com
  webscan probe xss -p "query:/search:q=shoes" -p "form:/comment:body" https://app.example.com
  webscan probe params --param-path /search --param-path form:/login https://app.example.com
  webscan probe auth-bypass --endpoint /admin --endpoint /api/users https://app.example.com
  webscan probe idor --config idor.yaml`,
		Args: cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return probeCapabilities(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !slices.Contains(probeCapabilities(), name) {
				return fail(fmt.Errorf("%w: %q (want one of %s)", scan.ErrUnknownCapability, name, strings.Join(probeCapabilities(), ", ")))
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return fail(err)
			}
			req := scan.Request{Capabilities: []string{name}, Params: cfg.Scan.Params}
			if err := in.apply(cmd, args[1:], &req.Params); err != nil {
				return fail(err)
			}
			return a.run(cmd.Context(), cfg, req)
		},
	}
	in.register(cmd, false, true)
	return cmd
}

func probeCapabilities() []string {
	var out []string
	for _, name := range scan.Names() {
		if !slices.Contains(discoveryModes, name) {
			out = append(out, name)
		}
	}
	return out
}
