package router

import (
	"encoding/json"
	"strings"
)

// ClassifierOutput is the tagged result of parsing raw classifier text.
// Parsed carries the agent-name field extracted from a structured response;
// Unparsed carries the raw text itself, which the resolver may still be able
// to match against the synonym tables.
type ClassifierOutput struct {
	Parsed    bool
	AgentName string
	RawText   string
}

// Raw returns the string the resolver should consume.
func (o ClassifierOutput) Raw() string {
	if o.Parsed {
		return o.AgentName
	}
	return o.RawText
}

// ParseClassifierOutput extracts the agent-name field from raw classifier
// output. The classifier is asked for {"agent_called": ...} but models wrap
// JSON in prose often enough that a bare parse is not sufficient: when the
// whole text does not parse, the outermost brace-delimited block is tried
// before giving up and treating the text as an unparsed name.
func ParseClassifierOutput(raw string) ClassifierOutput {
	text := strings.TrimSpace(raw)

	if name, ok := agentCalledField(text); ok {
		return ClassifierOutput{Parsed: true, AgentName: name}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if name, ok := agentCalledField(text[start : end+1]); ok {
			return ClassifierOutput{Parsed: true, AgentName: name}
		}
	}

	return ClassifierOutput{RawText: text}
}

// agentCalledField parses text as a JSON object and pulls out a string
// "agent_called" member.
func agentCalledField(text string) (string, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return "", false
	}
	v, ok := obj["agent_called"]
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}
