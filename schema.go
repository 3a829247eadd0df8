package hearth

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// agentChoiceSchemaJSON is the JSON Schema the router enforces on the
// routing model's output.
const agentChoiceSchemaJSON = `{
  "type": "object",
  "properties": {
    "agent_id": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"},
    "additional_agents": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "agent_instructions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "agent_id": {"type": "string", "minLength": 1},
          "instruction": {"type": "string", "minLength": 1}
        },
        "required": ["agent_id", "instruction"],
        "additionalProperties": false
      }
    }
  },
  "required": ["agent_id", "confidence", "reasoning"],
  "additionalProperties": false
}`

var (
	choiceSchemaOnce sync.Once
	choiceSchema     *jsonschema.Schema
	choiceSchemaErr  error
)

func compiledChoiceSchema() (*jsonschema.Schema, error) {
	choiceSchemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(agentChoiceSchemaJSON), &doc); err != nil {
			choiceSchemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("agent_choice.json", doc); err != nil {
			choiceSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		choiceSchema, choiceSchemaErr = c.Compile("agent_choice.json")
	})
	return choiceSchema, choiceSchemaErr
}

// parseAgentChoice validates raw model output against the routing schema
// and decodes it. Markdown code fences around the JSON are tolerated since
// models wrap output in them even when told not to.
func parseAgentChoice(raw string) (AgentChoice, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return AgentChoice{}, fmt.Errorf("empty routing response")
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return AgentChoice{}, fmt.Errorf("unmarshal routing response: %w", err)
	}
	schema, err := compiledChoiceSchema()
	if err != nil {
		return AgentChoice{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return AgentChoice{}, fmt.Errorf("routing response failed schema validation: %w", err)
	}

	var choice AgentChoice
	if err := json.Unmarshal([]byte(cleaned), &choice); err != nil {
		return AgentChoice{}, fmt.Errorf("decode routing response: %w", err)
	}
	return choice, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, and trims whitespace.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line, e.g. "json".
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
