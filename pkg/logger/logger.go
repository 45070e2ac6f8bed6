package logger

import (
	"log"

	"mktplace/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger from the logging configuration. Output may be
// "stdout", "stderr" or a file path. The returned func closes the output.
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, func(), error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
		log.Printf("Warning: Failed to parse log level '%s', defaulting to 'info'. Error: %v\n", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	sink, closeSink, err := zap.Open(output)
	if err != nil {
		return nil, nil, err
	}

	logger := zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(sink),
		logLevel,
	), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logger, closeSink, nil
}
