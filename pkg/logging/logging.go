package logging

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/opst/savethat/pkg/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing human readable lines into w.
//
// When debug is true, debug level messages are also written.
func New(w io.Writer, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	return zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(zapcore.AddSync(w)), level))
}

// Nop returns a logger discarding everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func consoleEncoder() zapcore.Encoder {
	conf := zap.NewDevelopmentEncoderConfig()
	conf.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(conf)
}

func jsonEncoder() zapcore.Encoder {
	conf := zap.NewProductionEncoderConfig()
	conf.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return zapcore.NewJSONEncoder(conf)
}

// ForRun returns a logger which writes into base and also into run log files in dir:
// domain.LogFile as text and domain.JSONLogFile as JSON lines.
// Log files are written at debug level, regardless of the level of base.
//
// Every entry in log files has the field "key". Entries into base are left as they are,
// and options of base are kept.
//
// The returned close function flushes and closes log files.
// After close, the logger should not be used.
func ForRun(base *zap.Logger, dir string, key string) (*zap.Logger, func() error, error) {
	text, err := os.OpenFile(filepath.Join(dir, domain.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	jsonl, err := os.OpenFile(filepath.Join(dir, domain.JSONLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		text.Close()
		return nil, nil, err
	}

	files := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(), zapcore.Lock(text), zapcore.DebugLevel),
		zapcore.NewCore(jsonEncoder(), zapcore.Lock(jsonl), zapcore.DebugLevel),
	).With([]zapcore.Field{zap.String("key", key)})

	logger := base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, files)
	}))

	closer := func() error {
		// syncing stderr fails on some platforms. It is not a matter.
		_ = logger.Sync()
		return errors.Join(text.Close(), jsonl.Close())
	}
	return logger, closer, nil
}
