package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recordMonitor struct {
	errs   []error
	panics []any
}

func (r *recordMonitor) CaptureException(err error, _ map[string]string) { r.errs = append(r.errs, err) }
func (r *recordMonitor) CapturePanic(v any, _ map[string]string)         { r.panics = append(r.panics, v) }
func (r *recordMonitor) Flush(time.Duration)                             {}

func TestGlobalMonitor(t *testing.T) {
	rec := &recordMonitor{}
	Init(rec)
	defer Init(NopMonitor{})

	CaptureException(errors.New("boom"), map[string]string{"pile": "A"})
	CaptureException(nil, nil)
	err := CapturePanic("bad tick", nil)
	if err == nil || err.Error() != "panic: bad tick" {
		t.Fatalf("unexpected panic error %v", err)
	}
	if len(rec.errs) != 1 || len(rec.panics) != 1 {
		t.Fatalf("unexpected captures: %d errors, %d panics", len(rec.errs), len(rec.panics))
	}
}
