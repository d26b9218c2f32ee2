package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "system status", got: Topics{}.SystemStatus(), want: "litekeeper/system/status"},
		{name: "health", got: Topics{}.Health("pool"), want: "litekeeper/health/pool"},
		{name: "recovery", got: Topics{}.Recovery("checkpoint"), want: "litekeeper/recovery/checkpoint"},
		{name: "stats", got: Topics{}.Stats(), want: "litekeeper/stats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildOnlinePayload(t *testing.T) {
	payload := buildOnlinePayload("litekeeper-test")

	var parsed map[string]string
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if parsed["status"] != "online" {
		t.Errorf("expected status online, got %q", parsed["status"])
	}
	if parsed["client_id"] != "litekeeper-test" {
		t.Errorf("expected client_id litekeeper-test, got %q", parsed["client_id"])
	}
	if parsed["timestamp"] == "" {
		t.Error("expected timestamp to be set")
	}
}

func TestBuildOfflinePayload(t *testing.T) {
	payload := buildOfflinePayload("litekeeper-test")

	var parsed map[string]string
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if parsed["status"] != "offline" {
		t.Errorf("expected status offline, got %q", parsed["status"])
	}
	if parsed["reason"] != "graceful_shutdown" {
		t.Errorf("expected graceful_shutdown reason, got %q", parsed["reason"])
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 0, false); err != ErrInvalidTopic {
		t.Errorf("expected ErrInvalidTopic for empty topic, got %v", err)
	}
	if err := c.Publish("topic", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("expected ErrInvalidQoS for qos 3, got %v", err)
	}

	big := []byte(strings.Repeat("x", maxPayloadSize+1))
	err := c.Publish("topic", big, 0, false)
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected oversized payload error, got %v", err)
	}
}
