package parsers

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// SkipBOM drops a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	bom := []byte{0xEF, 0xBB, 0xBF}
	peeked, err := br.Peek(3)
	if err != nil {
		return br
	}
	isBOM := true
	for i, b := range bom {
		if peeked[i] != b {
			isBOM = false
			break
		}
	}
	if isBOM {
		br.Read(make([]byte, 3))
	}
	return br
}

// DecodeReader converts r to UTF-8. Supported encodings are utf-8 (default),
// shift_jis and windows-1251.
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "_")) {
	case "", "utf_8", "utf8":
		return SkipBOM(r), nil
	case "shift_jis", "sjis":
		return transform.NewReader(r, japanese.ShiftJIS.NewDecoder()), nil
	case "windows_1251", "cp1251":
		return transform.NewReader(r, charmap.Windows1251.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported CSV encoding: %s", encoding)
	}
}

// getColIndex maps each canonical column to its index. aliases lists the
// header spellings accepted for a column; required columns must be present.
func getColIndex(header []string, aliases map[string][]string, required []string) (map[string]int, error) {
	byName := make(map[string]int)
	for i, colName := range header {
		byName[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	colIndex := make(map[string]int)
	for col, names := range aliases {
		for _, n := range names {
			if idx, ok := byName[strings.ToLower(n)]; ok {
				colIndex[col] = idx
				break
			}
		}
	}
	for _, req := range required {
		if _, ok := colIndex[req]; !ok {
			return nil, fmt.Errorf("required header not found: %s", req)
		}
	}
	return colIndex, nil
}
