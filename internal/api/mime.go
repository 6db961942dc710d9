package api

import (
	"mime"
	"strings"
)

const defaultMIMEType = "application/octet-stream"

type FileType struct {
	MIMEType   string
	Extensions []string
}

func (f FileType) Extension() string {
	if len(f.Extensions) == 0 {
		return ""
	}
	return f.Extensions[0]
}

// fileTypes: типы, которые чаще всего лежат в архиве. Порядок важен:
// первое расширение считается основным.
var fileTypes = []FileType{
	{MIMEType: "video/mp4", Extensions: []string{".mp4", ".m4v"}},
	{MIMEType: "video/x-matroska", Extensions: []string{".mkv"}},
	{MIMEType: "video/webm", Extensions: []string{".webm"}},
	{MIMEType: "video/quicktime", Extensions: []string{".mov"}},
	{MIMEType: "video/x-msvideo", Extensions: []string{".avi"}},
	{MIMEType: "audio/mpeg", Extensions: []string{".mp3"}},
	{MIMEType: "audio/mp4", Extensions: []string{".m4a"}},
	{MIMEType: "audio/ogg", Extensions: []string{".ogg", ".oga"}},
	{MIMEType: "audio/flac", Extensions: []string{".flac"}},
	{MIMEType: "audio/x-wav", Extensions: []string{".wav"}},
	{MIMEType: "image/jpeg", Extensions: []string{".jpg", ".jpeg"}},
	{MIMEType: "image/png", Extensions: []string{".png"}},
	{MIMEType: "image/gif", Extensions: []string{".gif"}},
	{MIMEType: "image/webp", Extensions: []string{".webp"}},
	{MIMEType: "application/pdf", Extensions: []string{".pdf"}},
	{MIMEType: "application/zip", Extensions: []string{".zip"}},
	{MIMEType: "application/x-rar-compressed", Extensions: []string{".rar"}},
	{MIMEType: "application/x-7z-compressed", Extensions: []string{".7z"}},
	{MIMEType: "application/vnd.android.package-archive", Extensions: []string{".apk"}},
	{MIMEType: "application/x-tgsticker", Extensions: []string{".tgs"}},
	{MIMEType: "text/plain", Extensions: []string{".txt"}},
}

func getFileTypeByMIME(mimeType string) (FileType, bool) {
	for _, ft := range fileTypes {
		if ft.MIMEType == mimeType {
			return ft, true
		}
	}
	// всё остальное отдаём системной таблице
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return FileType{MIMEType: mimeType, Extensions: exts}, true
	}
	return FileType{}, false
}

func getFileTypeByExtension(ext string) (FileType, bool) {
	ext = strings.ToLower(ext)
	for _, ft := range fileTypes {
		for _, e := range ft.Extensions {
			if e == ext {
				return ft, true
			}
		}
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if end := strings.IndexByte(t, ';'); end != -1 {
			t = strings.TrimSpace(t[:end])
		}
		return FileType{MIMEType: t, Extensions: []string{ext}}, true
	}
	return FileType{}, false
}
