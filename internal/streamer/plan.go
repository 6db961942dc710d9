package streamer

import (
	"strconv"
	"strings"

	"tgstream/internal/model"
)

// DefaultChunkSize: размер куска, который запрашивается у backend за один вызов.
const DefaultChunkSize = 1024 * 1024

// Plan: разбиение запрошенного диапазона байт на выровненные куски.
type Plan struct {
	Offset    int64 // смещение первого куска, кратно ChunkSize
	FirstCut  int   // сколько байт отрезать от начала первого куска
	LastCut   int   // сколько байт оставить от начала последнего куска
	Count     int   // сколько кусков запросить
	ChunkSize int
}

// NewPlan строит план для диапазона [from, until] (until включительно).
// Диапазон должен быть уже проверен вызывающей стороной: 0 <= from <= until.
func NewPlan(from, until int64, chunkSize int) Plan {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	size := int64(chunkSize)
	offset := from - from%size
	return Plan{
		Offset:    offset,
		FirstCut:  int(from - offset),
		LastCut:   int(until%size) + 1,
		Count:     int(until/size-offset/size) + 1,
		ChunkSize: chunkSize,
	}
}

// Length: суммарная длина байт, которую выдаст поток при полной отдаче.
func (p Plan) Length() int64 {
	if p.Count <= 0 {
		return 0
	}
	if p.Count == 1 {
		return int64(p.LastCut - p.FirstCut)
	}
	return int64(p.ChunkSize-p.FirstCut) + int64(p.Count-2)*int64(p.ChunkSize) + int64(p.LastCut)
}

// ParseRange разбирает заголовок Range для файла размером size и возвращает
// границы диапазона (until включительно). Пустой заголовок означает весь файл.
//
// Поддерживаются формы "bytes=a-b", "bytes=a-" и "bytes=-n". Конец диапазона
// за пределами файла обрезается до size-1.
func ParseRange(header string, size int64) (from, until int64, err error) {
	if header == "" {
		if size == 0 {
			return 0, -1, nil
		}
		return 0, size - 1, nil
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, 0, model.ErrRangeNotSatisfiable
	}

	// несколько диапазонов не поддерживаются
	start, end, ok := strings.Cut(spec, "-")
	if !ok || strings.Contains(end, ",") {
		return 0, 0, model.ErrRangeNotSatisfiable
	}
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)

	switch {
	case start == "" && end == "":
		return 0, 0, model.ErrRangeNotSatisfiable

	case start == "":
		// суффикс: последние n байт
		n, ok := parseUint(end)
		if !ok || n == 0 || size == 0 {
			return 0, 0, model.ErrRangeNotSatisfiable
		}
		return max(size-n, 0), size - 1, nil

	default:
		from, ok = parseUint(start)
		if !ok {
			return 0, 0, model.ErrRangeNotSatisfiable
		}
		until = size - 1
		if end != "" {
			until, ok = parseUint(end)
			if !ok {
				return 0, 0, model.ErrRangeNotSatisfiable
			}
		}
		if from >= size || until < from {
			return 0, 0, model.ErrRangeNotSatisfiable
		}
		return from, min(until, size-1), nil
	}
}

func parseUint(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
