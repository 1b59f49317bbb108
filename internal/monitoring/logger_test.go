package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters(t *testing.T) {
	defer Mute()

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("bridge started on %s", "127.0.0.1:10003")
	Diagf("receive failed: %v", "boom")
	Tracef("dropped %d byte datagram", 10)

	if !strings.Contains(ops.String(), "bridge started on 127.0.0.1:10003") {
		t.Errorf("ops output = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "receive failed: boom") {
		t.Errorf("diag output = %q", diag.String())
	}
	if !strings.Contains(trace.String(), "dropped 10 byte datagram") {
		t.Errorf("trace output = %q", trace.String())
	}
	if !strings.HasPrefix(ops.String(), prefix) {
		t.Errorf("ops output missing prefix: %q", ops.String())
	}
}

func TestNilWriterMutesStream(t *testing.T) {
	defer Mute()

	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})

	Diagf("should not panic")
	Tracef("should not panic")
	Opsf("visible")

	if strings.Count(ops.String(), "\n") != 1 {
		t.Errorf("ops output = %q, want exactly one line", ops.String())
	}
}

func TestMute(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(LogWriters{Ops: &buf, Diag: &buf, Trace: &buf})
	Mute()

	Opsf("a")
	Diagf("b")
	Tracef("c")

	if buf.Len() != 0 {
		t.Errorf("output after Mute = %q, want empty", buf.String())
	}
}
