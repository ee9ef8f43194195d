package llm

import (
	"bytes"
)

var stopMarkers = [][]byte{[]byte("<|end_of_text|>"), []byte("###")}

// CleanContent trims transport noise around a JSON payload: surrounding
// whitespace, a markdown code fence and trailing stop markers. The payload
// itself is never repaired; schema violations must surface as such.
func CleanContent(content []byte) []byte {
	b := bytes.TrimSpace(content)
	for _, m := range stopMarkers {
		b = bytes.TrimSpace(bytes.TrimSuffix(b, m))
	}
	if bytes.HasPrefix(b, []byte("```")) {
		if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
			b = b[nl+1:]
		} else {
			b = b[3:]
		}
		b = bytes.TrimSpace(bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```")))
	}
	return b
}
