package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestFrameBuffer_PublishJPEG(t *testing.T) {
	b := NewFrameBuffer()

	if _, version := b.Latest(); version != 0 {
		t.Fatalf("empty buffer version = %d, want 0", version)
	}

	data := []byte("frame-1")
	b.PublishJPEG(data)
	data[0] = 'X'

	frame, version := b.Latest()
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if string(frame) != "frame-1" {
		t.Errorf("frame = %q, want copy of published data", frame)
	}
}

func TestFrameBuffer_PublishMat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV encode test in short mode")
	}

	b := NewFrameBuffer()

	empty := gocv.NewMat()
	defer empty.Close()
	if err := b.Publish(&empty); err != nil {
		t.Fatalf("Publish(empty) error = %v", err)
	}
	if _, version := b.Latest(); version != 0 {
		t.Errorf("empty frame should be ignored, version = %d", version)
	}

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if err := b.Publish(&frame); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	data, version := b.Latest()
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	// JPEG start-of-image marker
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("published frame is not a JPEG")
	}
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	h := NewStreamHandler(NewFrameBuffer())

	req := httptest.NewRequest(http.MethodPost, "/api/stream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestStreamHandler_StreamsLatestFrame(t *testing.T) {
	frames := NewFrameBuffer()
	frames.PublishJPEG([]byte("jpeg-bytes"))

	h := NewStreamHandler(frames)
	h.interval = 5 * time.Millisecond
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %s, want multipart/x-mixed-replace", ct)
	}

	r := bufio.NewReader(resp.Body)
	wantHeaders := []string{
		"--frame\r\n",
		"Content-Type: image/jpeg\r\n",
		"Content-Length: 10\r\n",
		"\r\n",
	}
	for _, want := range wantHeaders {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read error = %v", err)
		}
		if line != want {
			t.Errorf("line = %q, want %q", line, want)
		}
	}

	body := make([]byte, 10)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body error = %v", err)
	}
	if string(body) != "jpeg-bytes" {
		t.Errorf("body = %q, want jpeg-bytes", body)
	}
}
