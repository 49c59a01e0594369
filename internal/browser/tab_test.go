package browser

import (
	"testing"

	"github.com/coderoom/server/internal/apierr"
)

func TestPresetForKnownSizes(t *testing.T) {
	for size, want := range devicePresets {
		got, _, err := presetFor(size)
		if err != nil {
			t.Fatalf("presetFor(%s): %v", size, err)
		}
		if got != want {
			t.Fatalf("presetFor(%s) = %+v, want %+v", size, got, want)
		}
	}
}

func TestPresetForUnknownSize(t *testing.T) {
	_, code, err := presetFor(DeviceSize("oversized"))
	if err == nil {
		t.Fatal("expected error for unknown device size")
	}
	if code != apierr.CodeValidation {
		t.Fatalf("expected validation error code, got %v", code)
	}
}

func TestConsoleRingBufferDropsOldest(t *testing.T) {
	tab := newTab("proj-1", "", DeviceDesktop, RotationLandscape, nil)
	for i := 0; i < consoleRingLimit+10; i++ {
		tab.appendConsole(ConsoleEntry{Level: "log", Text: "entry"})
	}
	entries := tab.consoleEntries()
	if len(entries) != consoleRingLimit {
		t.Fatalf("expected ring buffer capped at %d, got %d", consoleRingLimit, len(entries))
	}
}

func TestClearConsole(t *testing.T) {
	tab := newTab("proj-1", "", DeviceDesktop, RotationLandscape, nil)
	tab.appendConsole(ConsoleEntry{Level: "log", Text: "hi"})
	tab.clearConsole()
	if got := tab.consoleEntries(); len(got) != 0 {
		t.Fatalf("expected empty console after clear, got %d entries", len(got))
	}
}

func TestPendingDialogLifecycle(t *testing.T) {
	tab := newTab("proj-1", "", DeviceDesktop, RotationLandscape, nil)
	d := PendingDialog{ID: "d1", Type: "alert", Message: "hello"}
	tab.addPendingDialog(d)

	got, ok := tab.popPendingDialog("d1")
	if !ok {
		t.Fatal("expected pending dialog to be found")
	}
	if got != d {
		t.Fatalf("popPendingDialog = %+v, want %+v", got, d)
	}

	if _, ok := tab.popPendingDialog("d1"); ok {
		t.Fatal("expected dialog to be removed after pop")
	}
}

func TestDropAllDialogs(t *testing.T) {
	tab := newTab("proj-1", "", DeviceDesktop, RotationLandscape, nil)
	tab.addPendingDialog(PendingDialog{ID: "d1", Type: "confirm", Message: "ok?"})
	tab.addPendingDialog(PendingDialog{ID: "d2", Type: "alert", Message: "hi"})
	tab.dropAllDialogs()
	if _, ok := tab.popPendingDialog("d1"); ok {
		t.Fatal("expected dialogs cleared")
	}
	if _, ok := tab.popPendingDialog("d2"); ok {
		t.Fatal("expected dialogs cleared")
	}
}

func TestCloseWithNilPageIsSafe(t *testing.T) {
	tab := newTab("proj-1", "", DeviceDesktop, RotationLandscape, nil)
	tab.addPendingDialog(PendingDialog{ID: "d1", Type: "alert", Message: "hi"})
	tab.close()
	if _, ok := tab.popPendingDialog("d1"); ok {
		t.Fatal("expected close to drop pending dialogs")
	}
}
