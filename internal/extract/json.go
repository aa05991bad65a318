// Package extract recovers one JSON payload from a batch's raw output or,
// failing that, from the STDOUT section of its execution log.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n(.*?)```")

// FindObject returns the JSON object carried by text. The whole text is
// tried first, then fenced code blocks, then every '{' offset. Among several
// candidates the last one with an "assessments" key wins, else the last one.
func FindObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if obj, ok := decodeWhole(text); ok {
		return obj, true
	}

	var fenced []map[string]any
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if obj, ok := decodeWhole(m[1]); ok {
			fenced = append(fenced, obj)
		}
	}
	if obj, ok := pick(fenced); ok {
		return obj, true
	}

	return pick(scanObjects(text))
}

func decodeWhole(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// scanObjects decodes an object at every '{' that starts one. Objects nested
// inside an already decoded object are skipped.
func scanObjects(text string) []map[string]any {
	var found []map[string]any
	for i := 0; i < len(text); {
		start := strings.IndexByte(text[i:], '{')
		if start < 0 {
			break
		}
		start += i

		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil || obj == nil {
			i = start + 1
			continue
		}
		found = append(found, obj)
		i = start + int(dec.InputOffset())
	}
	return found
}

func pick(candidates []map[string]any) (map[string]any, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if _, ok := candidates[i]["assessments"]; ok {
			return candidates[i], true
		}
	}
	return candidates[len(candidates)-1], true
}
