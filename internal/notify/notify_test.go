package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/orbitworks/orbit/internal/events"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Job completed",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "job 42",
				Text:  "All tasks complete",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var body []byte
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
		Repo:    "orbitworks/demo",
		Branch:  "orbit/abc123",
		Cycles:  3,
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}

	var msg SlackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Expected 1 attachment, got %d", len(msg.Attachments))
	}
	fields := msg.Attachments[0].Fields
	if len(fields) != 3 {
		t.Fatalf("Expected 3 fields, got %d", len(fields))
	}
	if fields[0].Value != "orbitworks/demo" || fields[1].Value != "orbit/abc123" || fields[2].Value != "3" {
		t.Errorf("Unexpected field values: %+v", fields)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestRelayForwardsTerminalEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub(logger)

	sink := &recordingNotifier{}
	relay := NewRelay(hub, sink, logger)
	relay.Start()

	hub.Publish(events.New(events.TaskCompleted, "job-1", nil)) // not forwarded
	hub.Publish(events.New(events.JobCompleted, "job-1", map[string]any{
		"reason": "all_tasks_complete",
		"repo":   "orbitworks/demo",
		"branch": "orbit/abc123",
		"cycles": 2,
	}))
	hub.Publish(events.New(events.JobError, "job-2", map[string]any{"error": "discovery failed"}))

	deadline := time.After(2 * time.Second)
	for sink.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 notifications, got %d", sink.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	relay.Stop()

	got := sink.all()
	if got[0].Type != NotifySuccess || got[0].JobID != "job-1" {
		t.Errorf("first notification = %+v, want success for job-1", got[0])
	}
	if got[0].Repo != "orbitworks/demo" || got[0].Branch != "orbit/abc123" || got[0].Cycles != 2 {
		t.Errorf("first notification = %+v, want job details carried over", got[0])
	}
	if got[1].Type != NotifyError || got[1].Message != "discovery failed" {
		t.Errorf("second notification = %+v, want error with message", got[1])
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Send(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
