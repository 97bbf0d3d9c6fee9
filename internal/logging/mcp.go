package logging

import "log/slog"

// SetupMCPMode configures logging for MCP stdio mode.
//
// In stdio mode stdout carries the JSON-RPC stream and stderr may be
// surfaced to the client, so logs go exclusively to the rotating file.
func SetupMCPMode(logPath string) (*slog.Logger, func(), error) {
	return SetupMCPModeWithLevel(logPath, "info")
}

// SetupMCPModeWithLevel is SetupMCPMode with an explicit level.
func SetupMCPModeWithLevel(logPath, level string) (*slog.Logger, func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      logPath,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, nil, err
	}

	slog.SetDefault(logger)
	return logger, cleanup, nil
}
