package logging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger and installs it as the zap global. Every
// entry carries a run_id so lines from one invocation can be grouped.
func New(debug bool, logFile string) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}

	logger, err := cfg.Build(zap.Fields(zap.String("run_id", uuid.NewString())))
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(logger)

	return logger, nil
}

// ToStderr is New with output forced to stderr, for commands that own stdout.
func ToStderr(debug bool) (*zap.Logger, error) {
	return New(debug, "stderr")
}
