package instrument

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/record"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	reg := NewRegistry(rec, testLogger())

	shapes := []FuncInfo{
		{Package: "billing", Function: "Open", Static: true, Path: "billing/billing.go", Line: 10},
		{Package: "billing", Class: "Invoice", Function: "Total", Path: "billing/invoice.go", Line: 42},
		{Package: "billing", Class: "Invoice", Function: "AddLine", Path: "billing/invoice.go", Line: 61},
	}
	for _, info := range shapes {
		reg.Register(info)
	}
	if got := reg.Size(); got != len(shapes) {
		t.Fatalf("Size() = %d, want %d", got, len(shapes))
	}

	first := reg.Register(shapes[1])
	second := reg.Register(shapes[1])
	if first != second {
		t.Error("re-registering the same function returned a new template")
	}
	if got := reg.Size(); got != len(shapes) {
		t.Errorf("Size() after re-register = %d, want %d", got, len(shapes))
	}

	classMap := rec.ClassMap()
	if len(classMap) != 1 || classMap[0].Name != "billing" {
		t.Fatalf("ClassMap() = %+v, want single billing package", classMap)
	}
}

func TestTemplate_EnterExit(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	reg := NewRegistry(rec, testLogger())
	tmpl := reg.Register(FuncInfo{
		Package: "billing", Class: "Invoice", Function: "Total",
		Path: "billing/invoice.go", Line: 42,
	})

	if err := rec.Start(domain.Metadata{Name: "trace"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	fr := tmpl.Enter(domain.CaptureParam("taxRate", 0.2))
	fr.Exit(118, nil)

	recording, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(recording.Events) != 2 {
		t.Fatalf("Events count = %d, want 2", len(recording.Events))
	}

	call, ret := recording.Events[0], recording.Events[1]
	if call.Kind != domain.KindCall || ret.Kind != domain.KindReturn {
		t.Fatalf("event kinds = %q, %q; want call, return", call.Kind, ret.Kind)
	}
	if call.DefinedClass != "billing.Invoice" {
		t.Errorf("DefinedClass = %q, want %q", call.DefinedClass, "billing.Invoice")
	}
	if call.MethodID != "Total" {
		t.Errorf("MethodID = %q, want %q", call.MethodID, "Total")
	}
	if len(call.Params) != 1 || call.Params[0].Value != "0.2" {
		t.Errorf("Params = %+v, want taxRate rendered as 0.2", call.Params)
	}
	if ret.ParentID != call.ID {
		t.Errorf("ParentID = %d, want %d", ret.ParentID, call.ID)
	}
	if ret.Return == nil || ret.Return.Value != "118" {
		t.Errorf("Return = %+v, want value 118", ret.Return)
	}
	if ret.ID <= call.ID {
		t.Errorf("event ids not increasing: call %d, return %d", call.ID, ret.ID)
	}
}

func TestTemplate_ExitRecordsError(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	reg := NewRegistry(rec, testLogger())
	tmpl := reg.Register(FuncInfo{Package: "billing", Function: "Close"})

	if err := rec.Start(domain.Metadata{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	fr := tmpl.Enter()
	fr.Exit(nil, errors.New("ledger locked"))

	recording, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(recording.Events) != 2 {
		t.Fatalf("Events count = %d, want 2", len(recording.Events))
	}
	ret := recording.Events[1]
	if ret.Error != "ledger locked" {
		t.Errorf("Error = %q, want %q", ret.Error, "ledger locked")
	}
	if ret.Return != nil {
		t.Errorf("Return = %+v, want nil", ret.Return)
	}
}

func TestRegistry_ThrottleShedsWholePairs(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	reg := NewRegistry(rec, testLogger())
	tmpl := reg.Register(FuncInfo{Package: "billing", Function: "Post"})
	reg.SetThrottle(1, 1)

	if err := rec.Start(domain.Metadata{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	outer := tmpl.Enter()
	shed := tmpl.Enter()
	shed.Exit("ignored", nil)
	outer.Exit(nil, nil)

	recording, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(recording.Events) != 2 {
		t.Fatalf("Events count = %d, want 2 (shed invocation dropped whole)", len(recording.Events))
	}
	if recording.Events[1].ParentID != recording.Events[0].ID {
		t.Errorf("surviving pair broken: ParentID = %d, want %d",
			recording.Events[1].ParentID, recording.Events[0].ID)
	}
}

func TestFrame_ExitIdempotent(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	reg := NewRegistry(rec, testLogger())
	tmpl := reg.Register(FuncInfo{Package: "billing", Function: "Settle"})

	if err := rec.Start(domain.Metadata{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	fr := tmpl.Enter()
	fr.Exit(1, nil)
	fr.Exit(2, nil)

	recording, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(recording.Events) != 2 {
		t.Errorf("Events count = %d, want 2 (second Exit is a no-op)", len(recording.Events))
	}
}

func TestTemplate_SessionStartedMidPair(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	reg := NewRegistry(rec, testLogger())
	tmpl := reg.Register(FuncInfo{Package: "billing", Function: "Reconcile"})

	// Enter before any session exists; the call is silently dropped.
	fr := tmpl.Enter()

	if err := rec.Start(domain.Metadata{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The exit now arrives with no matching call on the stack and is
	// discarded rather than corrupting correlation.
	fr.Exit(nil, nil)

	recording, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(recording.Events) != 0 {
		t.Errorf("Events count = %d, want 0", len(recording.Events))
	}
}
