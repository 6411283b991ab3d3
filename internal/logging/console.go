package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewConsole returns a Logger writing human-readable, UTC-timestamped lines
// to out via a zerolog.ConsoleWriter. This is the default sink used when a
// cache is created without an explicit WithLogger option.
func NewConsole(out io.Writer) Logger {
	writer := zerolog.ConsoleWriter{
		Out:              out,
		TimeFormat:       time.RFC3339,
		TimeLocation:     time.UTC,
		FormatLevel:      formatLevel,
		FormatTimestamp:  formatTimestamp,
		PartsOrder:       []string{"time", "level", "logPrefix", "message"},
		FormatFieldValue: removeNilFields,
	}

	zl := zerolog.New(writer).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	return &logger{logger: zl}
}

func formatTimestamp(input any) string {
	return fmt.Sprintf("[%s]", input)
}

func removeNilFields(input any) string {
	if input == nil {
		return ""
	}

	return fmt.Sprintf("%v", input)
}

func formatLevel(input any) string {
	const tmpl = "[%s]"

	strLvl, ok := input.(string)
	if !ok {
		return ""
	}

	switch strLvl {
	case levelTraceStr:
		return fmt.Sprintf(tmpl, "TRC")
	case levelDebugStr:
		return fmt.Sprintf(tmpl, "DBG")
	case levelInfoStr:
		return fmt.Sprintf(tmpl, "INF")
	case levelWarnStr:
		return fmt.Sprintf(tmpl, "WRN")
	case levelErrorStr:
		return fmt.Sprintf(tmpl, "ERR")
	case levelPanicStr:
		return fmt.Sprintf(tmpl, "PNC")
	default:
		return strings.ToUpper(fmt.Sprintf(tmpl, strLvl[:min(3, len(strLvl))]))
	}
}
