package extract

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/traditionalchinese"
)

// decodeText returns UTF-8 input unchanged and decodes anything else as Big5,
// which is what older Traditional Chinese teaching files tend to be saved in.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := traditionalchinese.Big5.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

func isText(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	for _, c := range sample {
		if c == 0 {
			return false
		}
	}
	return len(data) > 0
}
