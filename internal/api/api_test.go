package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"tgstream/internal/backend/fake"
	"tgstream/internal/link"
	"tgstream/internal/model"
	"tgstream/internal/relay"
)

const (
	videoID   = 10
	unnamedID = 11
	foreignID = 12
)

type testServer struct {
	*httptest.Server
	backend *fake.Backend
	data    []byte
	hash    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	data := bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz"), 100)

	b := fake.New(2)
	b.Put(100, data)
	b.Put(101, data[:10])
	b.Put(102, data[:10])

	a := fake.NewArchive()
	video := fake.Document(videoID, 100, 2, "my video.mp4", "video/mp4", int64(len(data)))
	a.Add(video)
	unnamed := fake.Document(unnamedID, 101, 2, "", "", 10)
	a.Add(unnamed)
	a.Add(fake.Document(foreignID, 102, 5, "far.bin", "", 10))

	rl, err := relay.New([]relay.Account{{Backend: b, Archive: a}}, relay.Config{ChunkSize: 256}, nil)
	be.Err(t, err, nil)
	t.Cleanup(func() { _ = rl.Close() })

	srv := httptest.NewServer(New(rl, Info{
		BotUsername: "store_bot",
		Version:     "test",
		Links:       link.Builder{BaseURL: "https://files.example.com/"},
	}))
	t.Cleanup(srv.Close)

	return &testServer{
		Server:  srv,
		backend: b,
		data:    data,
		hash:    model.ShortHash(video.Document.FileUniqueID),
	}
}

func (s *testServer) do(t *testing.T, method, path string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, nil)
	be.Err(t, err, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	be.Err(t, err, nil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	be.Err(t, err, nil)
	return resp, body
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/", nil)
	be.Equal(t, resp.StatusCode, http.StatusOK)

	var got statusResponse
	be.Err(t, json.Unmarshal(body, &got), nil)
	be.Equal(t, got.ServerStatus, "running")
	be.Equal(t, got.TelegramBot, "@store_bot")
	be.Equal(t, got.ConnectedBots, 1)
	be.Equal(t, got.Loads, map[string]int64{"bot1": 0})
	be.Equal(t, got.Version, "test")
}

func TestStreamWholeFile(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/10/my+video.mp4?hash="+s.hash, nil)
	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, body, s.data)
	be.Equal(t, resp.Header.Get("Content-Type"), "video/mp4")
	be.Equal(t, resp.Header.Get("Accept-Ranges"), "bytes")
	be.Equal(t, resp.Header.Get("Content-Length"), "2600")
	be.Equal(t, resp.Header.Get("Content-Disposition"), `inline; filename=my-video.mp4`)
	be.Equal(t, resp.Header.Get("Content-Range"), "")
}

func TestStreamRange(t *testing.T) {
	tests := []struct {
		name      string
		rng       string
		from, to  int
		wantRange string
	}{
		{name: "closed", rng: "bytes=100-299", from: 100, to: 299, wantRange: "bytes 100-299/2600"},
		{name: "open", rng: "bytes=2500-", from: 2500, to: 2599, wantRange: "bytes 2500-2599/2600"},
		{name: "suffix", rng: "bytes=-10", from: 2590, to: 2599, wantRange: "bytes 2590-2599/2600"},
		{name: "clamped", rng: "bytes=2599-9999", from: 2599, to: 2599, wantRange: "bytes 2599-2599/2600"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			resp, body := s.do(t, http.MethodGet, "/10/my+video.mp4?hash="+s.hash, map[string]string{"Range": tt.rng})
			be.Equal(t, resp.StatusCode, http.StatusPartialContent)
			be.Equal(t, resp.Header.Get("Content-Range"), tt.wantRange)
			be.Equal(t, body, s.data[tt.from:tt.to+1])
		})
	}
}

func TestStreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		header     map[string]string
		wantStatus int
	}{
		{name: "bad_range", path: "/10/x?hash=%s", header: map[string]string{"Range": "bytes=5000-"}, wantStatus: http.StatusRequestedRangeNotSatisfiable},
		{name: "wrong_hash", path: "/10/x?hash=zzzzzz", wantStatus: http.StatusForbidden},
		{name: "no_hash", path: "/10/x", wantStatus: http.StatusForbidden},
		{name: "unknown_message", path: "/999/x?hash=%s", wantStatus: http.StatusNotFound},
		{name: "bad_path", path: "/favicon.ico", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			path := strings.ReplaceAll(tt.path, "%s", s.hash)
			resp, _ := s.do(t, http.MethodGet, path, tt.header)
			be.Equal(t, resp.StatusCode, tt.wantStatus)
			if tt.wantStatus == http.StatusRequestedRangeNotSatisfiable {
				be.Equal(t, resp.Header.Get("Content-Range"), "bytes */2600")
			}
			be.Equal(t, s.backend.Stats().GetFile, 0)
		})
	}
}

func TestStreamLegacyPath(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodGet, "/"+s.hash+"10", nil)
	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, body, s.data)
}

func TestStreamHead(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodHead, "/10/my+video.mp4?hash="+s.hash, nil)
	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, len(body), 0)
	be.Equal(t, resp.Header.Get("Content-Length"), "2600")
	be.Equal(t, s.backend.Stats().GetFile, 0)
}

func TestStreamAuthorizationFailed(t *testing.T) {
	s := newTestServer(t)
	s.backend.ImportFailures = 100

	hash := model.ShortHash(fake.Document(foreignID, 102, 5, "", "", 0).Document.FileUniqueID)
	resp, _ := s.do(t, http.MethodGet, "/12/far.bin?hash="+hash, nil)
	be.Equal(t, resp.StatusCode, http.StatusBadGateway)
}

func TestStreamFailureAbortsResponse(t *testing.T) {
	s := newTestServer(t)
	boom := errors.New("connection reset")
	s.backend.GetFileHook = func(call int, offset int64) ([]byte, bool, error) {
		return nil, call == 2, boom
	}

	req, err := http.NewRequest(http.MethodGet, s.URL+"/10/my+video.mp4?hash="+s.hash, nil)
	be.Err(t, err, nil)
	resp, err := http.DefaultClient.Do(req)
	be.Err(t, err, nil)
	defer resp.Body.Close()

	// заголовки уже ушли, но тело не дочитывается до конца
	be.Equal(t, resp.StatusCode, http.StatusOK)
	_, err = io.ReadAll(resp.Body)
	be.Err(t, err)
}

func TestWatch(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/watch/10/my+video.mp4?hash="+s.hash, nil)
	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, resp.Header.Get("Content-Type"), "text/html; charset=utf-8")
	page := string(body)
	be.True(t, strings.Contains(page, "<video"))
	be.True(t, strings.Contains(page, "https://files.example.com/10/my-video.mp4?hash="+s.hash))
	be.True(t, strings.Contains(page, "2.5 KiB"))

	resp, _ = s.do(t, http.MethodGet, "/watch/10/x?hash=wrong1", nil)
	be.Equal(t, resp.StatusCode, http.StatusForbidden)
}

func TestWatchDownloadPage(t *testing.T) {
	s := newTestServer(t)
	hash := model.ShortHash(fake.Document(unnamedID, 101, 2, "", "", 0).Document.FileUniqueID)

	resp, body := s.do(t, http.MethodGet, "/watch/11/x?hash="+hash, nil)
	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.True(t, !strings.Contains(string(body), "<video"))
	be.True(t, strings.Contains(string(body), "Download"))
}

func TestFileMeta(t *testing.T) {
	tests := []struct {
		name     string
		d        model.FileDescriptor
		wantName string
		wantMIME string
	}{
		{
			name:     "named",
			d:        model.FileDescriptor{FileName: "Film (2020).mkv", MimeType: "video/x-matroska"},
			wantName: "Film-2020.mkv",
			wantMIME: "video/x-matroska",
		},
		{
			name:     "mime_from_name",
			d:        model.FileDescriptor{FileName: "song.MP3"},
			wantName: "song.mp3",
			wantMIME: "audio/mpeg",
		},
		{
			name:     "unnamed_with_mime",
			d:        model.FileDescriptor{Kind: model.MediaVideo, MimeType: "video/mp4", UniqueID: "AgADxyz123"},
			wantName: "video_AgADxy.mp4",
			wantMIME: "video/mp4",
		},
		{
			name:     "nothing_known",
			d:        model.FileDescriptor{Kind: model.MediaDocument, UniqueID: "QQQQQQQ"},
			wantName: "document_QQQQQQ",
			wantMIME: defaultMIMEType,
		},
		{
			name:     "path_in_name",
			d:        model.FileDescriptor{FileName: "../../etc/passwd", MimeType: "text/plain"},
			wantName: "passwd.txt",
			wantMIME: "text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, mimeType := fileMeta(&tt.d)
			be.Equal(t, name, tt.wantName)
			be.Equal(t, mimeType, tt.wantMIME)
		})
	}
}

func TestParseFilePath(t *testing.T) {
	tests := []struct {
		path     string
		hash     string
		wantID   int
		wantHash string
		wantErr  bool
	}{
		{path: "10/name.mp4", hash: "AbCdEf", wantID: 10, wantHash: "AbCdEf"},
		{path: "10", hash: "AbCdEf", wantID: 10, wantHash: "AbCdEf"},
		{path: "AbCdEf10", wantID: 10, wantHash: "AbCdEf"},
		{path: "123456789", wantID: 789, wantHash: "123456"},
		{path: "123456789", hash: "AbCdEf", wantID: 123456789, wantHash: "AbCdEf"},
		{path: "10/name", wantID: 10, wantHash: ""},
		{path: "name.mp4", wantErr: true},
		{path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			id, hash, err := parseFilePath(tt.path, tt.hash)
			if tt.wantErr {
				be.Err(t, err)
				return
			}
			be.Err(t, err, nil)
			be.Equal(t, id, tt.wantID)
			be.Equal(t, hash, tt.wantHash)
		})
	}
}
