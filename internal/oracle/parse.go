package oracle

import (
	"encoding/json"
	"strings"

	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
)

// extractResponse finds the first JSON object in free-form model output
// that carries a suggestedBotId. Models like to wrap answers in prose or
// markdown fences, so every '{' is tried as a start position.
func extractResponse(output string) (*matcher.Response, error) {
	for i := strings.IndexByte(output, '{'); i >= 0; {
		var resp matcher.Response
		if err := json.NewDecoder(strings.NewReader(output[i:])).Decode(&resp); err == nil && resp.SuggestedBotID != "" {
			return &resp, nil
		}
		next := strings.IndexByte(output[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, malformed("no JSON object with suggestedBotId in oracle output")
}
