package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/transfer"
)

type noopAPI struct{}

func (noopAPI) PickAndUpload(context.Context) (bridge.UploadAck, error) {
	return bridge.UploadAck{}, nil
}

func (noopAPI) DownloadFile(context.Context, string) (bridge.DownloadAck, error) {
	return bridge.DownloadAck{}, nil
}

func (noopAPI) OnTransferEvent(func(bridge.TransferEvent)) func() { return func() {} }

func TestTransferView_NonTerminalLines(t *testing.T) {
	var buf bytes.Buffer
	view := newTransferView(&buf, false)

	reg := transfer.NewRegistry(noopAPI{}, transfer.WithClock(clockwork.NewFakeClock()))
	defer reg.Close()
	reg.Subscribe(view.Render)

	reg.OnProgress(transfer.KindUpload, "u1", 10, "1 MB/s", "")
	reg.OnProgress(transfer.KindUpload, "u1", 50, "1 MB/s", "")
	reg.OnComplete(transfer.KindUpload, "u1")
	reg.OnProgress(transfer.KindDownload, "d1", 10, "", "")
	reg.OnError(transfer.KindDownload, "d1", "disk full")
	view.Close()

	out := buf.String()
	want := []string{
		"↑ Uploading... started",
		"✓ ↑ Uploading...",
		"↓ Downloading... started",
		"✗ ↓ Downloading...: disk full",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
	if strings.Count(out, "started") != 2 {
		t.Errorf("expected one start line per transfer:\n%s", out)
	}
	if view.IsTerminal() {
		t.Error("expected non-terminal view")
	}
}

func TestTransferView_ReactivatedRecordGetsNewBar(t *testing.T) {
	var buf bytes.Buffer
	view := newTransferView(&buf, false)

	reg := transfer.NewRegistry(noopAPI{}, transfer.WithClock(clockwork.NewFakeClock()))
	defer reg.Close()
	reg.Subscribe(view.Render)

	reg.OnProgress(transfer.KindUpload, "u1", 100, "", "")
	reg.OnComplete(transfer.KindUpload, "u1")
	reg.OnProgress(transfer.KindUpload, "u1", 5, "", "")
	reg.Clear(transfer.KindUpload, "u1")
	view.Close()

	if got := strings.Count(buf.String(), "started"); got != 2 {
		t.Errorf("expected 2 start lines, got %d:\n%s", got, buf.String())
	}
}

func TestSingleBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewSingleBar(&buf, "report.pdf")

	bar.Update(transfer.Record{File: bridge.FileMetadata{Name: "report.pdf"}, Progress: 40, Speed: "2 MB/s"})
	bar.Finish()

	if buf.Len() == 0 {
		t.Error("expected the bar to render")
	}
}

func TestSingleBar_Fail(t *testing.T) {
	var buf bytes.Buffer
	bar := NewSingleBar(&buf, "report.pdf")

	bar.Fail(errors.New("connection lost"))

	if !strings.Contains(buf.String(), "Error: connection lost") {
		t.Errorf("expected error line, got %q", buf.String())
	}
}
