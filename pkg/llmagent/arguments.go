package llmagent

import "encoding/json"

// parseArguments decodes a tool call's raw JSON argument object into a
// generic map, the shape every ToolFunc expects.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
