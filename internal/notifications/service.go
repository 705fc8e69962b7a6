package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelup/internal/config"
	"reelup/internal/textutil"
)

const userAgent = "reelup-notify/0.1"

// Event names a notification kind.
type Event string

const (
	EventUploadStarted     Event = "upload_started"
	EventUploadCompleted   Event = "upload_completed"
	EventUploadCancelled   Event = "upload_cancelled"
	EventEncodingCompleted Event = "encoding_completed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries event fields such as "files", "bytes", "duration",
// "folder", "source", "context" and "error".
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders an event. Events that would be noise on a phone, such as
// a batch starting, report ok=false.
func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventUploadCompleted:
		files := intValue(payload["files"])
		noun := textutil.Ternary(files == 1, "file", "files")
		body := fmt.Sprintf("Uploaded %d %s (%s)", files, noun, textutil.FormatBytes(int64Value(payload["bytes"])))
		if folder := stringValue(payload["folder"]); folder != "" {
			body += " to " + folder
		}
		if d, ok := payload["duration"].(time.Duration); ok && d > 0 {
			body += " in " + d.Round(time.Second).String()
		}
		return message{
			title: "reelup - Upload Complete",
			body:  body,
			tags:  []string{"reelup", "upload", "completed"},
		}, true
	case EventUploadCancelled:
		return message{
			title: "reelup - Upload Cancelled",
			body:  fmt.Sprintf("Upload cancelled after %d of %d files", intValue(payload["completed"]), intValue(payload["files"])),
			tags:  []string{"reelup", "upload", "cancelled"},
		}, true
	case EventEncodingCompleted:
		return message{
			title: "reelup - Encoded",
			body:  "Encoding complete: " + stringValue(payload["source"]),
			tags:  []string{"reelup", "encode", "completed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := stringValue(payload["context"]); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if detail := stringValue(payload["error"]); detail != "" {
			b.WriteString(detail)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "reelup - Error",
			body:     b.String(),
			tags:     []string{"reelup", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "reelup - Test",
			body:     "Notification system test",
			tags:     []string{"reelup", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case error:
		return strings.TrimSpace(val.Error())
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	}
	return ""
}

func intValue(v any) int {
	return int(int64Value(v))
}

func int64Value(v any) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	}
	return 0
}
