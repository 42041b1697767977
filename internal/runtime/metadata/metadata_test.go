package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil || len(cloned) != 0 {
		t.Fatal("expected empty non-nil map")
	}
}

func TestWithAndTopic(t *testing.T) {
	base := New(KeyCorrelationID, "c1")
	withTopic := base.With(KeyTopic, "blazor-net-app/response/c1")

	if base.Topic() != "" {
		t.Fatal("With must not mutate the receiver")
	}
	if withTopic.Topic() != "blazor-net-app/response/c1" {
		t.Fatalf("unexpected topic %q", withTopic.Topic())
	}
	if withTopic[KeyCorrelationID] != "c1" {
		t.Fatal("expected existing entries to be kept")
	}
}

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "b")
	if len(md) != 1 || md["a"] != "1" {
		t.Fatalf("unexpected metadata %#v", md)
	}
}

func TestWatermillConversions(t *testing.T) {
	wm := ToWatermill(Metadata{"k": "v"})
	wm["k"] = "changed"

	back := FromWatermill(message.Metadata{"x": "y"})
	if back["x"] != "y" {
		t.Fatalf("unexpected conversion %#v", back)
	}
	if len(FromWatermill(nil)) != 0 {
		t.Fatal("expected empty metadata for nil input")
	}
}

func TestStampTopicKeepsExisting(t *testing.T) {
	fresh := message.NewMessage("1", nil)
	stamped := message.NewMessage("2", nil)
	stamped.Metadata.Set(KeyTopic, "original/topic")

	StampTopic("a/b", fresh, stamped, nil)

	if fresh.Metadata.Get(KeyTopic) != "a/b" {
		t.Fatalf("expected topic stamped, got %q", fresh.Metadata.Get(KeyTopic))
	}
	if stamped.Metadata.Get(KeyTopic) != "original/topic" {
		t.Fatal("expected existing topic to be preserved")
	}
}
