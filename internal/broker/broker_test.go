package broker

import "testing"

func TestNewPublisherDefaultsTopic(t *testing.T) {
	p, err := NewPublisher([]string{"localhost:9092"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if p.topic != DefaultTopic {
		t.Errorf("expected default topic %q, got %q", DefaultTopic, p.topic)
	}
}

func TestNewPublisherCustomTopic(t *testing.T) {
	p, err := NewPublisher([]string{"localhost:9092"}, "custom-topic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if p.topic != "custom-topic" {
		t.Errorf("expected custom-topic, got %q", p.topic)
	}
}

func TestNewConsumerDefaultsTopic(t *testing.T) {
	c, err := NewConsumer([]string{"localhost:9092"}, "", "filemesh", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
}
