package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "Benchmark", "cases")

	progress.Start(10)
	progress.Update(5)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "Benchmark:") {
		t.Errorf("output %q does not contain label", output)
	}
	if !strings.Contains(output, "(10/10)") {
		t.Errorf("output %q does not show completion", output)
	}
	if !strings.Contains(output, "cases/s") {
		t.Errorf("output %q does not contain unit", output)
	}
}

func TestSimpleProgressDefaults(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "", "").(*SimpleProgress)

	if progress.label != "Progress" || progress.unit != "items" {
		t.Errorf("label/unit = %q/%q", progress.label, progress.unit)
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "Export", "records")

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if got := buf.String(); got != "\n" {
		t.Errorf("output = %q, want a lone newline", got)
	}
}

func TestSimpleProgressClampsOvershoot(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "Export", "records").(*SimpleProgress)

	progress.Start(4)
	progress.Update(9)

	if progress.current != 4 {
		t.Errorf("current = %d, want 4", progress.current)
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "Export", "records")

	progress.Start(100)
	progress.Error(fmt.Errorf("disk full"))

	output := buf.String()
	if !strings.Contains(output, "Error: disk full") {
		t.Errorf("output %q does not contain the error", output)
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "Benchmark", "cases")
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				progress.Update(int64(start*100 + j))
			}
		}(i)
	}
	wg.Wait()
	progress.Finish()

	if buf.Len() == 0 {
		t.Error("Expected some progress output")
	}
}
