package api

import (
	"strconv"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		defaultName string
		fallbackExt string
		want        string
	}{
		{name: "normal", fileName: "movie.mkv", want: "movie.mkv"},
		{name: "spaces_and_brackets", fileName: "my film (2020).mp4", want: "my-film-2020.mp4"},
		{name: "no_ext_fallback", fileName: "README", fallbackExt: ".txt", want: "README.txt"},
		{name: "empty", fileName: "", fallbackExt: ".mp4", want: "unnamed.mp4"},
		{name: "empty_default", fileName: "", defaultName: "video_AbCdEf", fallbackExt: ".mp4", want: "video_AbCdEf.mp4"},
		{name: "unix_path", fileName: "/home/user/virus.exe", want: "virus.exe"},
		{name: "windows_path", fileName: `C:\Users\Public\malware.bat`, want: "malware.bat"},
		{name: "reserved", fileName: "con.txt", want: "con_.txt"},
		{name: "reserved_upper", fileName: "LPT9.dat", want: "LPT9_.dat"},
		{name: "ext_sanitized", fileName: "clip.M P4", want: "clip.mp4"},
		{name: "ext_garbage", fileName: "clip.<>", fallbackExt: ".bin", want: "clip.bin"},
		{name: "ext_too_long", fileName: "a." + strings.Repeat("x", 20), want: "a." + strings.Repeat("x", maxExtLen)},
		{name: "only_dots", fileName: "....", defaultName: "doc", want: "doc"},
		{name: "dangerous_chars", fileName: `file<>:"|?*evil.exe`, want: "file-evil.exe"},
		{name: "control_chars", fileName: "file\x00\x01\x0A\x1Fend.log", want: "file-end.log"},
		{name: "bidi", fileName: "document\u202Egpj.exe", want: "documentgpj.exe"},
		{name: "unicode", fileName: "Документ.pdf", want: "Документ.pdf"},
		{name: "long", fileName: strings.Repeat("a", 150) + ".bin", want: strings.Repeat("a", maxBaseNameLen) + ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := tt.defaultName
			if def == "" {
				def = defaultFileName
			}
			be.Equal(t, safeFileName(tt.fileName, def, tt.fallbackExt), tt.want)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input  string
		output string
	}{
		{"NUL.tar.gz", "NUL-tar-gz"},
		{"../../etc/passwd", "etc-passwd"},
		{"file; rm -rf /", "file-rm-rf"},
		{"`reboot`", "reboot"},
		{"$(id)", "id"},
		{"photo_\u200B\u200Bmalware.jpg", "photo_malware-jpg"},
		{"\uFF0Fetc\uFF0Fpasswd", "etc-passwd"},
		{"50%.png", "50-png"},
		{"@user", "@user"},
		{"+plus+", "+plus+"},
		{"  trim  me  ", "trim-me"},
		{"tab\tseparated", "tab-separated"},
		{".hidden", "hidden"},
		{"", "unnamed"},
		{"----", "unnamed"},
		{"\x00\x01\x02", "unnamed"},
		{strings.Repeat("a", 300), strings.Repeat("a", maxBaseNameLen)},
		{"a" + strings.Repeat("!", 100) + "b", "a-b"},
	}

	for i, tt := range tests {
		t.Run(strconv.Itoa(i+1), func(t *testing.T) {
			be.Equal(t, sanitizeFilename(tt.input, maxBaseNameLen), tt.output)
		})
	}
}

func TestFileTypes(t *testing.T) {
	ft, ok := getFileTypeByMIME("video/x-matroska")
	be.True(t, ok)
	be.Equal(t, ft.Extension(), ".mkv")

	ft, ok = getFileTypeByExtension(".JPEG")
	be.True(t, ok)
	be.Equal(t, ft.MIMEType, "image/jpeg")

	_, ok = getFileTypeByMIME("application/x-unknown-thing")
	be.True(t, !ok)
	_, ok = getFileTypeByExtension(".unknownext")
	be.True(t, !ok)
}
