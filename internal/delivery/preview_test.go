package delivery

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func previewLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestLogPreview_Disabled(t *testing.T) {
	logger, buf := previewLogger()

	LogPreview(logger, PreviewConfig{}, []byte("Subject: hi\r\n\r\nsecret body"))

	assert.Empty(t, buf.String())
}

func TestLogPreview_HeadersOnly(t *testing.T) {
	logger, buf := previewLogger()

	LogPreview(logger, PreviewConfig{Headers: true}, []byte("Subject: hi\r\n\r\nsecret body"))

	out := buf.String()
	assert.Contains(t, out, "Subject: hi")
	assert.NotContains(t, out, "secret body")
}

func TestLogPreview_BodyCut(t *testing.T) {
	logger, buf := previewLogger()

	LogPreview(logger, PreviewConfig{MaxBody: 5}, []byte("Subject: hi\r\n\r\nhello world"))

	out := buf.String()
	assert.Contains(t, out, "body=hello")
	assert.NotContains(t, out, "world")
	assert.NotContains(t, out, "Subject: hi")
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		headers string
		body    string
	}{
		{"crlf separator", "A: 1\r\nB: 2\r\n\r\nbody", "A: 1\r\nB: 2", "body"},
		{"lf separator", "A: 1\n\nbody", "A: 1", "body"},
		{"no separator", "A: 1\r\nB: 2", "A: 1\r\nB: 2", ""},
		{"empty body", "A: 1\r\n\r\n", "A: 1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers, body := splitMessage([]byte(tt.data))
			assert.Equal(t, tt.headers, string(headers))
			assert.Equal(t, tt.body, string(body))
		})
	}
}
