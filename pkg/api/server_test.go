package api

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// buildTinyMOD assembles an M.K. file with one C-2 note on sample 1.
func buildTinyMOD() []byte {
	var buf bytes.Buffer
	fixed := func(s string, n int) {
		raw := make([]byte, n)
		copy(raw, s)
		buf.Write(raw)
	}
	u16be := func(v uint16) { binary.Write(&buf, binary.BigEndian, v) }

	fixed("api test", 20)
	fixed("pluck", 22)
	u16be(4)
	buf.WriteByte(0)
	buf.WriteByte(64)
	u16be(0)
	u16be(1)
	for i := 1; i < 31; i++ {
		fixed("", 22)
		u16be(0)
		buf.WriteByte(0)
		buf.WriteByte(0)
		u16be(0)
		u16be(1)
	}
	buf.WriteByte(1)
	buf.WriteByte(0)
	buf.Write(make([]byte, 128))
	fixed("M.K.", 4)

	pattern := make([]byte, 64*4*4)
	copy(pattern[0:], []byte{0x01, 0xAC, 0x10, 0x00})
	buf.Write(pattern)
	buf.Write([]byte{0x00, 0x40, 0x7F, 0x40, 0x00, 0xC0, 0x81, 0xC0})
	return buf.Bytes()
}

func postModule(t *testing.T, r *gin.Engine, path string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "tiny.mod")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConvertEndpoint(t *testing.T) {
	r := NewRouter(nil)
	w := postModule(t, r, "/api/v1/convert", buildTinyMOD())

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Every conversion gets an id the client can quote back.
	id := w.Header().Get("X-Conversion-Id")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Conversion-Id = %q: %v", id, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["tiny_Ableton_Project/tiny.als"] {
		t.Errorf("missing .als in zip: %v", names)
	}
	if !names["tiny_Ableton_Project/Samples/pluck.wav"] {
		t.Errorf("missing sample in zip: %v", names)
	}
}

func TestConvertEndpointRejectsGarbage(t *testing.T) {
	r := NewRouter(nil)
	w := postModule(t, r, "/api/v1/convert", []byte("definitely not a tracker module"))

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}

	// Failures carry the conversion id too, in header and body.
	id := w.Header().Get("X-Conversion-Id")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("X-Conversion-Id = %q: %v", id, err)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["conversion_id"] != id {
		t.Errorf("body conversion_id = %q, header %q", resp["conversion_id"], id)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := NewRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %q", resp["status"])
	}
}
