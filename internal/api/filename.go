package api

import (
	"strings"
	"unicode"
)

const (
	defaultFileName = "unnamed"
	maxBaseNameLen  = 100
	maxExtLen       = 10
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true,
	"COM4": true, "COM5": true, "COM6": true,
	"COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true,
	"LPT4": true, "LPT5": true, "LPT6": true,
	"LPT7": true, "LPT8": true, "LPT9": true,
}

// safeFileName строит имя файла для заголовка Content-Disposition:
//
//   - обрезает путь;
//   - базовое имя чистится так же, как sanitizeFilename;
//   - расширение оставляет только буквы и цифры, пустое заменяется на fallbackExt;
//   - пустое имя заменяется на defaultName (или "unnamed");
//   - зарезервированные имена windows дополняются символом подчеркивания.
//
// Примеры:
//
//	"/some/path/movie.mkv", "" -> "movie.mkv"
//	"my film (2020).mp4", "" -> "my-film-2020.mp4"
//	"", ".mp4" -> "unnamed.mp4"
//	"con.txt", "" -> "con_.txt"
func safeFileName(fileName, defaultName, fallbackExt string) string {
	if p := strings.LastIndexAny(fileName, `/\`); p != -1 {
		fileName = fileName[p+1:]
	}

	base, ext := fileName, ""
	if p := strings.LastIndexByte(fileName, '.'); p != -1 {
		base, ext = fileName[:p], sanitizeExt(fileName[p+1:])
	}
	if ext == "" {
		ext = fallbackExt
	}

	if strings.TrimFunc(base, func(r rune) bool { return r == '.' || unicode.IsSpace(r) }) == "" {
		base = defaultName
	}
	baseName := sanitizeFilename(base, maxBaseNameLen)

	if reservedNames[strings.ToUpper(baseName)] {
		baseName = baseName + "_"
	}

	return baseName + ext
}

func sanitizeExt(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if sb.Len() >= maxExtLen {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	return "." + sb.String()
}

// ASCII опасные символы
const asciiProblem = `<>:"/\|?*~.;#$%&'(){}[]!` + "`"

// Fullwidth неопасные символы, но вводят в заблуждение
const fullwidthProblem = "＜＞：＂／＼｜？＊～；＃＄％＆＇（）｛｝［］！"

func sanitizeFilename(s string, maxLen int) string {
	var sb strings.Builder
	sb.Grow(maxLen)

	prev := '-' // чтобы не писать лидирующий '-'
	n := 0
loop:
	for _, r := range s {
		if n >= maxLen {
			break
		}

		switch {
		case unicode.IsSpace(r):
			r = '-'
		case unicode.IsControl(r) || !unicode.IsPrint(r):
			continue loop
		case strings.ContainsRune(asciiProblem, r), strings.ContainsRune(fullwidthProblem, r):
			r = '-'
		}

		// Схлопываем последовательные '-'
		if r == '-' && prev == '-' {
			continue
		}

		sb.WriteRune(r)
		prev = r
		n++
	}

	name := strings.TrimSuffix(sb.String(), "-")
	if name == "" {
		return defaultFileName
	}
	return name
}
