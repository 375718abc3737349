package main

import (
	"fmt"

	"github.com/oukeidos/splitfill/internal/auth"
	"github.com/oukeidos/splitfill/internal/settings"
	"github.com/spf13/cobra"
)

type configOptions struct {
	settingsPath string
}

func newConfigCmd() *cobra.Command {
	opts := configOptions{}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change stored settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, &opts)
		},
	}
	cmd.SetUsageTemplate(groupUsageTemplate)
	cmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "Settings file path (default ~/.config/splitfill/settings.toml)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, &opts)
		},
	}
	show.SetUsageTemplate(subcommandUsageTemplate)

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting (base_url or model)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, &opts, args[0], args[1])
		},
		SilenceUsage: true,
	}
	set.SetUsageTemplate(subcommandUsageTemplate)

	cmd.AddCommand(show, set)
	return cmd
}

func runConfigShow(cmd *cobra.Command, opts *configOptions) error {
	path, err := settings.ResolvePath(opts.settingsPath)
	if err != nil {
		return err
	}
	st := loadSettings(path)

	keyState := "not set"
	if key, source := getKey(false); key != "" {
		keyState = fmt.Sprintf("%s (%s)", auth.Mask(key), source)
	}
	baseURL := st.BaseURL
	if baseURL == "" {
		baseURL = "(default)"
	}
	rows := [][]string{
		{settings.KeyAPIKey, keyState},
		{settings.KeyBaseURL, baseURL},
		{settings.KeyModel, st.Model},
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Key", "Value"}, rows, nil))
	fmt.Fprintf(out, "Settings file: %s\n", path)
	return nil
}

func runConfigSet(cmd *cobra.Command, opts *configOptions, key, value string) error {
	if key == settings.KeyAPIKey {
		return fmt.Errorf("api_key is stored in the OS keychain; use 'splitfill env setup'")
	}
	path, err := settings.ResolvePath(opts.settingsPath)
	if err != nil {
		return err
	}
	st := loadSettings(path)
	if err := st.Set(key, value); err != nil {
		return err
	}
	if err := settings.Save(path, st); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	got, _ := st.Get(key)
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, got)
	return nil
}
