package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kanban-realtime/pkg/log"
)

// TaskHandler receives a task mutation notification. The envelope carries
// the originating actor and server timestamp; raw is the full payload.
type TaskHandler func(event string, env TaskEventEnvelope, raw json.RawMessage)

// TaskListener fans task mutation events for one project into a callback,
// typically used to invalidate cached board state.
type TaskListener struct {
	sub    Subscription
	logger log.Logger
}

// ListenTaskEvents subscribes to a project's broadcast channel and binds the
// reserved task events to fn.
func ListenTaskEvents(t Transport, projectID string, fn TaskHandler, logger log.Logger) (*TaskListener, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	sub, err := t.Subscribe(BroadcastChannel(projectID))
	if err != nil {
		return nil, err
	}

	l := &TaskListener{sub: sub, logger: logger}
	for _, event := range TaskEvents {
		event := event
		sub.Bind(event, func(data json.RawMessage) {
			env, err := ParseTaskEvent(data)
			if err != nil {
				logger.Warnf(context.Background(), "malformed %s event: %v", event, err)
				return
			}
			fn(event, env, data)
		})
	}

	return l, nil
}

// Stop unbinds the task events and leaves the channel.
func (l *TaskListener) Stop() {
	l.sub.Unsubscribe()
}

// Trigger posts task mutation notifications to the relay endpoint on behalf
// of the board application. Failures are reported to the caller but must
// never roll back the task mutation that produced them.
type Trigger struct {
	// URL is the trigger endpoint, e.g. http://host:8081/realtime/trigger.
	URL string

	// Token is the acting user's session token.
	Token string

	HTTPClient *http.Client
}

// BroadcastTaskEvent publishes a task event to all viewers of a project.
func (t *Trigger) BroadcastTaskEvent(ctx context.Context, projectID, event string, data any) error {
	body, err := json.Marshal(map[string]any{
		"channel": BroadcastChannel(projectID),
		"event":   event,
		"data":    data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errBody)
		return fmt.Errorf("trigger rejected (%d): %s", resp.StatusCode, errBody.Error)
	}
	return nil
}
