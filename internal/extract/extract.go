// Package extract pulls the JSON object out of a free-form model reply.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DeclineMarker is the reply sentinel meaning no relevant stock could be identified.
const DeclineMarker = "ERROR-01"

var (
	ErrNoJSONFound    = errors.New("no JSON object found in reply")
	ErrMalformedJSON  = errors.New("reply contains malformed JSON")
	ErrModelDeclined  = errors.New("model declined the article")
	firstObjectRegexp = regexp.MustCompile(`(?s)\{(.*?)\}`)
)

// JSONObject returns the first {...} span of raw decoded as an object.
// The span is the shortest one starting at the first '{', so replies with
// nested objects are reported as malformed. Numbers decode as json.Number.
func JSONObject(raw string) (map[string]any, error) {
	if strings.Contains(raw, DeclineMarker) {
		return nil, ErrModelDeclined
	}

	match := firstObjectRegexp.FindString(raw)
	if match == "" {
		return nil, ErrNoJSONFound
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(match)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if out == nil {
		return nil, ErrMalformedJSON
	}
	return out, nil
}
