package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWritePrometheus(t *testing.T) {
	ImageTotal.WithLabelValues("static:default", "ok").Inc()
	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	if !strings.Contains(buf.String(), "caption_images_total") {
		t.Fatalf("output missing caption_images_total:\n%s", buf.String())
	}
}

func TestSetActiveModel(t *testing.T) {
	SetActiveModel("", "static:a")
	SetActiveModel("static:a", "static:b")
	if got := testutil.ToFloat64(ActiveModel.WithLabelValues("static:b")); got != 1 {
		t.Fatalf("active model gauge = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(ActiveModel); n != 1 {
		t.Fatalf("active model series = %d, want 1", n)
	}
}
