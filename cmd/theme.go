package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pitr/gemini-ios-sub000/internal/config"
	"github.com/pitr/gemini-ios-sub000/internal/paths"
)

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Adjust how pages are styled",
}

var themeSiteColorsCmd = &cobra.Command{
	Use:       "site-colors on|off",
	Short:     "Toggle per-capsule page colours",
	Long:      `Derive each page's colours from its host name, or use the neutral default palette.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}

		path := viper.ConfigFileUsed()
		if path == "" {
			path = paths.ConfigFile()
		}
		if err := config.SaveSiteColors(path, enabled); err != nil {
			return fmt.Errorf("saving theme: %w", err)
		}
		pterm.Success.Printf("Site colours %s (%s)\n", args[0], path)
		return nil
	},
}

func init() {
	themeCmd.AddCommand(themeSiteColorsCmd)
	rootCmd.AddCommand(themeCmd)
}
