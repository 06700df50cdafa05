package session

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-neo/pkg/activity"
	"github.com/teslashibe/go-neo/pkg/live"
)

// Tool names declared to the service.
const (
	ToolChangeVoice    = "changeVoice"
	ToolExpressEmotion = "expressEmotion"
)

var emotions = map[string]activity.State{
	"happy":    activity.Happy,
	"singing":  activity.Singing,
	"sneezing": activity.Sneezing,
}

// Tools returns the declarations sent in the session setup.
func Tools() []live.ToolDecl {
	return []live.ToolDecl{
		{
			Name: ToolChangeVoice,
			Description: "Change your speaking voice. The new voice is used " +
				"after the next reconnect.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"voiceName": map[string]any{
						"type":        "string",
						"enum":        live.Voices,
						"description": "Prebuilt voice to switch to",
					},
				},
				"required": []string{"voiceName"},
			},
		},
		{
			Name:        ToolExpressEmotion,
			Description: "Show a short emotion on your face: happy, singing or sneezing.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"emotion": map[string]any{
						"type": "string",
						"enum": []string{"happy", "singing", "sneezing"},
					},
				},
				"required": []string{"emotion"},
			},
		},
	}
}

// invokeTool runs call and returns the result to send back. Failures are
// answered, never escalated.
func (c *Controller) invokeTool(call live.ToolInvocation) (live.ToolResult, error) {
	switch call.Name {
	case ToolChangeVoice:
		name, err := stringArg(call, "voiceName")
		if err != nil {
			return live.Failure(call, err), err
		}
		if !live.ValidVoice(name) {
			err := &ToolInvocationError{Name: call.Name, Reason: fmt.Sprintf("unknown voice %q", name)}
			return live.Failure(call, err), err
		}
		// Takes effect on the next channel open.
		c.selectVoice(name)
		c.logger.Info("voice selection changed by tool", "voice", name)
		return live.Success(call, map[string]any{"voice": name}), nil

	case ToolExpressEmotion:
		name, err := stringArg(call, "emotion")
		if err != nil {
			return live.Failure(call, err), err
		}
		state, ok := emotions[strings.ToLower(name)]
		if !ok {
			err := &ToolInvocationError{Name: call.Name, Reason: fmt.Sprintf("unknown emotion %q", name)}
			return live.Failure(call, err), err
		}
		c.machine.Apply(activity.Excursion{State: state, Source: activity.FromSession})
		return live.Success(call, map[string]any{"emotion": state.String()}), nil

	default:
		err := &ToolInvocationError{Name: call.Name, Reason: "unknown tool"}
		return live.Failure(call, err), err
	}
}

func stringArg(call live.ToolInvocation, key string) (string, error) {
	v, ok := call.Args[key]
	if !ok {
		return "", &ToolInvocationError{Name: call.Name, Reason: "missing argument " + key}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &ToolInvocationError{Name: call.Name, Reason: fmt.Sprintf("argument %s must be a non-empty string", key)}
	}
	return s, nil
}
