// Planner output schema.
//
// The planner is the LLM acting strictly as a chooser: it returns exactly one
// of three actions and nothing else reaches the control flow. Output is
// validated as a tagged union; any mismatch is an error the orchestrator
// replaces with a fixed fallback message — raw model text (and especially raw
// JSON) never reaches the end user.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PlanAction is the tag of the planner union.
type PlanAction string

const (
	// PlanCallTool executes a named tool and maps its result to a reply.
	PlanCallTool PlanAction = "CALL_TOOL"
	// PlanRespond replies directly with natural language.
	PlanRespond PlanAction = "RESPOND"
	// PlanNoop explicitly does nothing.
	PlanNoop PlanAction = "NOOP"
)

// Plan is the validated planner decision.
type Plan struct {
	Action  PlanAction     `json:"action"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Planner parse errors.
var (
	ErrNoJSON      = errors.New("planner: no JSON object in output")
	ErrBadPlan     = errors.New("planner: output does not match the plan schema")
	ErrMissingTool = errors.New("planner: CALL_TOOL without a tool name")
)

// ParsePlan validates raw model output against the plan schema. Unknown
// action tags, missing required fields, and unparseable JSON are all errors;
// there is no partial trust of unvalidated fields.
func ParsePlan(raw string) (Plan, error) {
	payload := ExtractJSON(raw)
	if payload == "" {
		return Plan{}, ErrNoJSON
	}

	var p Plan
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrBadPlan, err)
	}

	p.Action = PlanAction(strings.ToUpper(string(p.Action)))
	switch p.Action {
	case PlanCallTool:
		if strings.TrimSpace(p.Tool) == "" {
			return Plan{}, ErrMissingTool
		}
	case PlanRespond:
		if strings.TrimSpace(p.Message) == "" {
			return Plan{}, fmt.Errorf("%w: RESPOND without a message", ErrBadPlan)
		}
	case PlanNoop:
	default:
		return Plan{}, fmt.Errorf("%w: unknown action %q", ErrBadPlan, p.Action)
	}
	return p, nil
}

// PlannerPrompt renders the fixed planner instruction for the given tool
// descriptions.
func PlannerPrompt(toolList string) string {
	return strings.TrimSpace(fmt.Sprintf(`
Você é o planejador de um assistente de memória pessoal. Decida UMA ação e
responda SOMENTE com um objeto JSON, sem texto adicional.

Formatos aceitos:
  {"action":"CALL_TOOL","tool":"<nome>","args":{...}}
  {"action":"RESPOND","message":"<resposta ao usuário>"}
  {"action":"NOOP"}

Ferramentas disponíveis:
%s
`, toolList))
}
