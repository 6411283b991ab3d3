package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer

	l := NewConsole(&buf)
	l.SetLevel(LevelTrace)

	tests := []struct {
		name  string
		fn    func(args ...any)
		fnf   func(format string, args ...any)
		level string
	}{
		{"Trace", l.Trace, l.Tracef, "TRC"},
		{"Debug", l.Debug, l.Debugf, "DBG"},
		{"Info", l.Info, l.Infof, "INF"},
		{"Warning", l.Warning, l.Warningf, "WRN"},
		{"Error", l.Error, l.Errorf, "ERR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn("message")
			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), "message")

			buf.Reset()
			tt.fnf("formatted %s", "message")
			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), "formatted message")
		})
	}
}

func TestLogger_SetGetLevel(t *testing.T) {
	var buf bytes.Buffer

	l := NewConsole(&buf)

	levels := []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarning, LevelError, LevelPanic}
	for _, lvl := range levels {
		l.SetLevel(lvl)
		assert.Equal(t, lvl, l.GetLevel())
	}
}

func TestLogger_SubLogger(t *testing.T) {
	var buf bytes.Buffer

	l := NewConsole(&buf)
	l.SetLevel(LevelInfo)

	child := l.SubLogger("sweeper[%s]", "default")
	child.Info("halted")

	assert.Contains(t, buf.String(), "sweeper[default]")
	assert.Contains(t, buf.String(), "halted")
}

func TestLogger_SetOutput(t *testing.T) {
	var bufA, bufB bytes.Buffer

	l := NewConsole(&bufA)
	l.SetOutput(&bufB)
	l.Info("redirected")

	assert.Empty(t, bufA.String())
	assert.Contains(t, bufB.String(), "redirected")
}

func TestLogger_AddField(t *testing.T) {
	var buf bytes.Buffer

	l := NewJSON(&buf)
	l.AddField("cache", "sessions")
	l.Info("started")

	assert.Contains(t, buf.String(), "\"cache\":\"sessions\"")
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer

	l := NewConsole(&buf)
	SetDefault(l)
	assert.Equal(t, l, Default())
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer

	l := NewJSON(&buf)
	l.Info("hello")
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
