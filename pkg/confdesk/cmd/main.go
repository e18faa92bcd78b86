package main

import (
	"flag"
	"fmt"

	"github.com/MixyLabs/confdesk/pkg/confdesk"
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose    bool
	configPath string
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs (useful for debugging device buses)")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")
	flag.StringVar(&configPath, "config", confdesk.DefaultConfigPath, "path to the YAML configuration file")
	flag.Parse()
}

func main() {
	logger, err := confdesk.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	if verbose {
		named.Debug("Verbose flag provided, all log messages will be shown")
	}

	if configPath != confdesk.DefaultConfigPath {
		named.Infow("Using custom config path", "path", configPath)
	}

	d, err := confdesk.NewConfdesk(logger, configPath, verbose)
	if err != nil {
		named.Fatalw("Failed to create confdesk object", "error", err)
	}

	if buildType != "" && (versionTag != "" || gitCommit != "") {
		identifier := gitCommit
		if versionTag != "" {
			identifier = versionTag
		}

		versionString := fmt.Sprintf("Version %s-%s", buildType, identifier)
		d.SetVersion(versionString)
	}

	if err = d.Initialize(); err != nil {
		named.Fatalw("Failed to initialize confdesk", "error", err)
	}
}
