package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/scan"
)

var discoveryModes = []string{scan.CapDiscover, scan.CapCommonFiles, scan.CapAPIEndpoints}

func (a *app) discoverCmd() *cobra.Command {
	var (
		in   inputFlags
		mode string
	)
	cmd := &cobra.Command{
		Use:   "discover [target]",
		Short: "Find reachable paths, filtering soft-404 responses",
		Long: `Runs content discovery. Modes:
  discover       recursive wordlist discovery (needs --words, --wordlist or --profile)
  common-files   fixed sweep of well-known sensitive files
  api-endpoints  fixed sweep of API and documentation paths`,
		Example: `  webscan discover --profile small https://app.example.com
  webscan discover -w builtin:common-dirs -e .bak,.old -R 3 https://app.example.com
  webscan discover --mode common-files https://app.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(discoveryModes, mode) {
				return fail(fmt.Errorf("%w: --mode %q: want one of %v", scan.ErrUnknownCapability, mode, discoveryModes))
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return fail(err)
			}
			req := scan.Request{Capabilities: []string{mode}, Params: cfg.Scan.Params}
			if err := in.apply(cmd, args, &req.Params); err != nil {
				return fail(err)
			}
			if mode == scan.CapDiscover && len(req.Words) == 0 && req.Wordlist == "" && req.Profile == "" {
				req.Profile = "small"
			}
			return a.run(cmd.Context(), cfg, req)
		},
	}
	in.register(cmd, true, false)
	cmd.Flags().StringVarP(&mode, "mode", "m", scan.CapDiscover, "Discovery mode: discover, common-files, api-endpoints")
	return cmd
}
