package delivery

import (
	"bytes"
	"log/slog"
)

// PreviewConfig controls what portion of an inbound message is logged as it
// passes through delivery.
type PreviewConfig struct {
	// MaxBody is the number of body bytes to log. Zero disables body
	// logging entirely. The cut is applied on raw bytes, so a truncated
	// preview may end mid-character.
	MaxBody int
	// Headers logs the raw header block when set.
	Headers bool
}

// LogPreview writes a structured preview of a raw message according to the
// config. It never fails: a message that does not split into header and
// body is treated as all headers.
func LogPreview(logger *slog.Logger, cfg PreviewConfig, data []byte) {
	if !cfg.Headers && cfg.MaxBody <= 0 {
		return
	}

	headers, body := splitMessage(data)

	attrs := make([]any, 0, 2)
	if cfg.Headers {
		attrs = append(attrs, slog.String("headers", string(headers)))
	}
	if cfg.MaxBody > 0 {
		preview := body
		if len(preview) > cfg.MaxBody {
			preview = preview[:cfg.MaxBody]
		}
		attrs = append(attrs, slog.String("body", string(preview)))
	}
	logger.Info("message preview", attrs...)
}

// splitMessage divides a raw message into its header block and body.
func splitMessage(data []byte) (headers, body []byte) {
	if idx := bytes.Index(data, []byte("\r\n\r\n")); idx >= 0 {
		return data[:idx], data[idx+4:]
	}
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		return data[:idx], data[idx+2:]
	}
	return data, nil
}
