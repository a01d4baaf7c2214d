package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/manav03panchal/tabula/internal/config"
)

// completeTables completes table ids from the configured schema. Completion
// runs without the runtime context, so the config is loaded directly.
func completeTables(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, t := range cfg.Tables {
		if strings.HasPrefix(t.ID, toComplete) {
			completions = append(completions, t.ID+"\t"+t.Name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeKinds completes field kind names.
func completeKinds(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var completions []string
	for _, name := range kindNames() {
		if strings.HasPrefix(name, toComplete) {
			completions = append(completions, name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
