package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func args(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

func TestDecodeNotification(t *testing.T) {
	tests := []struct {
		name    string
		n       Notification
		want    TransferEvent
		wantErr bool
	}{
		{
			name: "upload progress with all args",
			n:    Notification{Name: NotifyUploadProgress, Args: args(`"u1"`, `42`, `"1.5 MB/s"`, `"Transferring..."`)},
			want: TransferEvent{Direction: DirectionUpload, Kind: EventProgress, ID: "u1", Progress: 42, Speed: "1.5 MB/s", StatusMessage: "Transferring..."},
		},
		{
			name: "download progress without optional args",
			n:    Notification{Name: NotifyDownloadProgress, Args: args(`"f1"`, `7`)},
			want: TransferEvent{Direction: DirectionDownload, Kind: EventProgress, ID: "f1", Progress: 7},
		},
		{
			name: "numeric id and fractional progress",
			n:    Notification{Name: NotifyDownloadProgress, Args: args(`123456789`, `99.6`, `"0 B/s"`)},
			want: TransferEvent{Direction: DirectionDownload, Kind: EventProgress, ID: "123456789", Progress: 100, Speed: "0 B/s"},
		},
		{
			name: "progress above 100 is clamped",
			n:    Notification{Name: NotifyUploadProgress, Args: args(`"u1"`, `150`)},
			want: TransferEvent{Direction: DirectionUpload, Kind: EventProgress, ID: "u1", Progress: 100},
		},
		{
			name: "negative progress is clamped",
			n:    Notification{Name: NotifyDownloadProgress, Args: args(`"f1"`, `-5`)},
			want: TransferEvent{Direction: DirectionDownload, Kind: EventProgress, ID: "f1", Progress: 0},
		},
		{
			name: "upload complete",
			n:    Notification{Name: NotifyUploadComplete, Args: args(`"u1"`)},
			want: TransferEvent{Direction: DirectionUpload, Kind: EventComplete, ID: "u1"},
		},
		{
			name: "download error",
			n:    Notification{Name: NotifyDownloadError, Args: args(`"f1"`, `"File not found"`)},
			want: TransferEvent{Direction: DirectionDownload, Kind: EventError, ID: "f1", Error: "File not found"},
		},
		{
			name:    "unknown name",
			n:       Notification{Name: "onSomethingElse", Args: args(`"x"`)},
			wantErr: true,
		},
		{
			name:    "missing id",
			n:       Notification{Name: NotifyUploadComplete},
			wantErr: true,
		},
		{
			name:    "empty id",
			n:       Notification{Name: NotifyUploadComplete, Args: args(`""`)},
			wantErr: true,
		},
		{
			name:    "missing progress",
			n:       Notification{Name: NotifyUploadProgress, Args: args(`"u1"`)},
			wantErr: true,
		},
		{
			name:    "non-numeric progress",
			n:       Notification{Name: NotifyUploadProgress, Args: args(`"u1"`, `"half"`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeNotification(tt.n)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOnTransferEvent_DispatchAndUnsubscribe(t *testing.T) {
	a := NewAdapter()

	var order []string
	unsubFirst := a.OnTransferEvent(func(ev TransferEvent) { order = append(order, "first:"+ev.ID) })
	a.OnTransferEvent(func(ev TransferEvent) { order = append(order, "second:"+ev.ID) })

	a.Dispatch(TransferEvent{Direction: DirectionUpload, Kind: EventComplete, ID: "a"})
	unsubFirst()
	unsubFirst()
	a.Dispatch(TransferEvent{Direction: DirectionUpload, Kind: EventComplete, ID: "b"})

	assert.Equal(t, []string{"first:a", "second:a", "second:b"}, order)
}

func TestHandleNotification_DropsUndecodable(t *testing.T) {
	a := NewAdapter()

	var got []TransferEvent
	a.OnTransferEvent(func(ev TransferEvent) { got = append(got, ev) })

	a.HandleNotification(Notification{Name: "onMystery", Args: args(`"x"`)})
	a.HandleNotification(Notification{Name: NotifyDownloadComplete, Args: args(`"f1"`)})

	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, DirectionDownload, got[0].Direction)
}

// sliceSource replays a fixed list of notifications.
type sliceSource []Notification

func (s sliceSource) Listen(ctx context.Context, deliver func(Notification)) error {
	for _, n := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		deliver(n)
	}
	return nil
}

func TestListen_PumpsSource(t *testing.T) {
	a := NewAdapter()

	var kinds []EventKind
	a.OnTransferEvent(func(ev TransferEvent) { kinds = append(kinds, ev.Kind) })

	src := sliceSource{
		{Name: NotifyUploadProgress, Args: args(`"u1"`, `10`, `"1 KB/s"`)},
		{Name: NotifyUploadProgress, Args: args(`"u1"`, `60`, `"2 KB/s"`)},
		{Name: NotifyUploadComplete, Args: args(`"u1"`)},
	}
	require.NoError(t, a.Listen(context.Background(), src))

	assert.Equal(t, []EventKind{EventProgress, EventProgress, EventComplete}, kinds)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "progress", EventProgress.String())
	assert.Equal(t, "complete", EventComplete.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
