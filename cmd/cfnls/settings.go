package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cfnls/internal/config"
	"cfnls/internal/validate"
)

// startup is the configuration shared by lsp and lint.
type startup struct {
	settings validate.Settings
	markers  []string
	exclude  []string
	file     *config.File
}

// loadStartup reads cfnls.toml (explicit --config or discovered from the
// working directory) and applies --validator on top.
func loadStartup(cmd *cobra.Command) (startup, error) {
	flags := cmd.Root().PersistentFlags()
	configPath, err := flags.GetString("config")
	if err != nil {
		return startup{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	validator, err := flags.GetString("validator")
	if err != nil {
		return startup{}, fmt.Errorf("failed to get validator flag: %w", err)
	}

	var file *config.File
	if configPath != "" {
		file, err = config.Load(configPath)
	} else {
		var wd string
		wd, err = os.Getwd()
		if err == nil {
			file, err = config.Discover(wd)
		}
	}
	if err != nil {
		return startup{}, err
	}
	return newStartup(file, validator), nil
}

func newStartup(file *config.File, validator string) startup {
	settings := file.Settings()
	if v := strings.TrimSpace(validator); v != "" {
		settings.Path = v
	}
	return startup{
		settings: settings,
		markers:  file.Markers(),
		exclude:  file.Exclude(),
		file:     file,
	}
}
