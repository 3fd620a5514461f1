package codec_test

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"fieldline/internal/codec"
	"fieldline/internal/domain"
)

func TestCollectionRoundTripPreservesOrderAndFields(t *testing.T) {
	started := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	prop := "prop-1"
	in := []domain.TaskAssignment{
		{ID: "t2", AgentID: "a1", Title: "Second", Status: domain.StatusInProgress, StartedAt: &started, PropertyID: &prop},
		{ID: "t1", AgentID: "a1", Title: "First", Status: domain.StatusAssigned, Priority: domain.PriorityHigh},
	}
	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []domain.TaskAssignment
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	v := map[string]any{"b": 1, "a": []string{"x", "y"}}
	first, err := codec.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := codec.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding changed between calls")
		}
	}
}
