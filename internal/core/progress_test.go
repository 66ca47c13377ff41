package core

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProgress(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &barProgress{}, NewProgress("bar", &buf, nil))
	assert.IsType(t, &logProgress{}, NewProgress("LOG", &buf, nil))
	assert.IsType(t, noProgress{}, NewProgress("off", &buf, nil))
	assert.IsType(t, noProgress{}, NewProgress("", &buf, nil))
}

func TestBarProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(ProgressBar, &buf, nil)

	p.Start("Students", 3)
	for i := 0; i < 3; i++ {
		p.Advance()
	}
	p.Done()

	out := buf.String()
	assert.Contains(t, out, "Students")
	assert.Contains(t, out, "3/3")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := NewProgress(ProgressLog, nil, logger)

	p.Start("Enrollments", 1000)
	for i := 0; i < 1000; i++ {
		p.Advance()
	}
	p.Done()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "stage started"))
	assert.Equal(t, 10, strings.Count(out, "stage progress"))
	assert.Contains(t, out, "percent=100")
}
