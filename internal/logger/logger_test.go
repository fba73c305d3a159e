package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := base.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")
	ctx = SetStage(ctx, "retrieving")

	With(Fields{FieldCount: 2}).Info(ctx, "retrieved %d matches", 2)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}

	checks := map[string]interface{}{
		"service":      "test",
		FieldRequestID: "req-1",
		FieldStage:     "retrieving",
		"message":      "retrieved 2 matches",
	}
	for k, want := range checks {
		if line[k] != want {
			t.Errorf("field %s: expected %v, got %v", k, want, line[k])
		}
	}
	if line[FieldCount] != float64(2) {
		t.Errorf("expected count 2, got %v", line[FieldCount])
	}

	if GetRequestID(ctx) != "req-1" {
		t.Errorf("expected request id from context, got %q", GetRequestID(ctx))
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != GetDefault() {
		t.Error("expected default logger for empty context")
	}
}
