package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(10)
	defer bus.Unsubscribe(sub)

	bus.Publish(Event{
		Type:      EventPromptSuccess,
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-5",
		LatencyMs: 150,
	})

	select {
	case e := <-sub.C:
		if e.Type != EventPromptSuccess {
			t.Errorf("expected prompt_success, got %s", e.Type)
		}
		if e.Model != "claude-sonnet-4-5" {
			t.Errorf("unexpected model %s", e.Model)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe(10)
	sub2 := bus.Subscribe(10)
	defer bus.Unsubscribe(sub1)
	defer bus.Unsubscribe(sub2)

	bus.Publish(Event{Type: EventPluginFailed, Plugin: "broken", Category: "providers"})

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case e := <-sub.C:
			if e.Type != EventPluginFailed || e.Plugin != "broken" {
				t.Errorf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(10)
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
	select {
	case <-sub.Done():
	default:
		t.Error("expected done channel to be closed")
	}

	bus.Publish(Event{Type: EventPromptSuccess})
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	defer bus.Unsubscribe(sub)

	bus.Publish(Event{Type: EventPromptSuccess, Model: "first"})
	bus.Publish(Event{Type: EventPromptSuccess, Model: "second"})

	e := <-sub.C
	if e.Model != "first" {
		t.Errorf("expected first event, got %s", e.Model)
	}
	select {
	case e := <-sub.C:
		t.Errorf("expected dropped event, got %+v", e)
	default:
	}
}

func TestEventJSON(t *testing.T) {
	e := Event{Type: EventModelFallback, FromModel: "a", ToModel: "b"}
	var decoded map[string]any
	if err := json.Unmarshal(e.JSON(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["type"] != "model_fallback" || decoded["to_model"] != "b" {
		t.Errorf("unexpected payload %v", decoded)
	}
	if _, ok := decoded["provider"]; ok {
		t.Error("empty fields should be omitted")
	}
}
