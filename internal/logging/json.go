package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// NewJSON returns a Logger writing structured JSON lines to out.
func NewJSON(out io.Writer) Logger {
	zl := zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	return &logger{
		logger:  zl,
		outputs: []io.Writer{out},
	}
}
