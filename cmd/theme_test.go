package cmd

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/pitr/gemini-ios-sub000/internal/config"
	"github.com/pitr/gemini-ios-sub000/internal/paths"
)

func siteColors(t *testing.T, path string) bool {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v.GetBool("theme.site_colors")
}

func TestTheme_SiteColorsDefaultConfig(t *testing.T) {
	withHome(t)

	_, _, err := execute(t, "theme", "site-colors", "on")
	require.NoError(t, err)
	require.True(t, siteColors(t, paths.ConfigFile()))

	_, _, err = execute(t, "theme", "site-colors", "off")
	require.NoError(t, err)
	require.False(t, siteColors(t, paths.ConfigFile()))
}

func TestTheme_SiteColorsExplicitConfig(t *testing.T) {
	home := withHome(t)
	path := filepath.Join(home, "custom.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))

	_, _, err := execute(t, "--config", path, "theme", "site-colors", "on")
	require.NoError(t, err)
	require.True(t, siteColors(t, path))
}

func TestTheme_SiteColorsRejectsOtherValues(t *testing.T) {
	withHome(t)

	_, _, err := execute(t, "theme", "site-colors", "maybe")
	require.ErrorContains(t, err, "expected on or off")
}
