package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"tgstream/internal/link"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type pageData struct {
	FileName string
	FileURL  string
	FileSize string
	MimeType string
	UniqueID string
	Audio    bool
}

func Watch(rl Relay, links link.Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "Watch")

		f, ok := getFile(h, rl)
		if !ok {
			return
		}

		name, mimeType := fileMeta(f.FileDescriptor)
		data := pageData{
			FileName: strings.ReplaceAll(name, "_", " "),
			FileURL:  links.Download(f.MessageID, name, f.Hash()),
			FileSize: link.Size(f.Size),
			MimeType: mimeType,
			UniqueID: f.UniqueID,
		}

		page := "download.html"
		switch kind, _, _ := strings.Cut(mimeType, "/"); kind {
		case "audio":
			data.Audio = true
			page = "player.html"
		case "video":
			page = "player.html"
		}

		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, page, data); err != nil {
			h.log.Error("render page failed", "page", page, "error", err)
			h.WriteError(err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			h.log.Debug("write page failed", "error", err)
		}
	}
}
