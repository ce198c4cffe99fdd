package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("rename_file", "f1", "b.txt", int64(12))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.Type != MsgRequest {
		t.Errorf("expected type %q, got %q", MsgRequest, req.Type)
	}
	if req.ID == "" {
		t.Error("expected a correlation id")
	}
	if len(req.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(req.Args))
	}
	if string(req.Args[2]) != "12" {
		t.Errorf("expected third arg 12, got %s", req.Args[2])
	}

	other, _ := NewRequest("rename_file")
	if other.ID == req.ID {
		t.Error("expected distinct ids for distinct requests")
	}
	if other.Args != nil {
		t.Errorf("expected no args, got %v", other.Args)
	}
}

func TestNewRequest_UnencodableArg(t *testing.T) {
	if _, err := NewRequest("log", make(chan int)); err == nil {
		t.Error("expected error for unencodable argument")
	}
}

func TestMessageEncodeDecode(t *testing.T) {
	original, err := NewEvent("onUploadProgress", "u1", 42, "1 MB/s", "Transferring...")
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Error("expected newline-terminated line")
	}
	if bytes.Count(data, []byte("\n")) != 1 {
		t.Error("expected exactly one newline")
	}

	decoded, err := DecodeMessage(bytes.TrimSpace(data))
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if decoded.Type != MsgEvent || decoded.Method != "onUploadProgress" {
		t.Errorf("unexpected decoded event: %+v", decoded)
	}
	if len(decoded.Args) != 4 {
		t.Errorf("expected 4 args, got %d", len(decoded.Args))
	}
}

func TestNewOKResponse(t *testing.T) {
	resp, err := NewOKResponse("abc", map[string]bool{"success": true})
	if err != nil {
		t.Fatalf("NewOKResponse() error = %v", err)
	}
	if !resp.Success {
		t.Error("expected Success = true")
	}
	var data map[string]bool
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("data not JSON: %v", err)
	}
	if !data["success"] {
		t.Errorf("unexpected data: %s", resp.Data)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("abc", "Message not found")
	if resp.Success {
		t.Error("expected Success = false")
	}
	if resp.Error != "Message not found" {
		t.Errorf("expected error %q, got %q", "Message not found", resp.Error)
	}
	if resp.ID != "abc" {
		t.Errorf("expected id abc, got %q", resp.ID)
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"gossip","id":"1"}`},
		{"request without method", `{"type":"request","id":"1"}`},
		{"request without id", `{"type":"request","method":"list_files"}`},
		{"response without id", `{"type":"response","success":true}`},
		{"event without name", `{"type":"event","args":["x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.line))
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestDefaultSocketPath(t *testing.T) {
	path := DefaultSocketPath()
	if path == "" {
		t.Fatal("expected a socket path")
	}
	if !bytes.HasSuffix([]byte(path), []byte(SocketName)) {
		t.Errorf("expected path ending in %s, got %s", SocketName, path)
	}
}
