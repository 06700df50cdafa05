package live

// ToolDecl declares a function the model may call mid-conversation.
type ToolDecl struct {
	// Name is the unique identifier for the tool (e.g., "changeVoice").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolResult answers a ToolInvocation. ID and Name echo the invocation.
type ToolResult struct {
	ID     string
	Name   string
	Result map[string]any
}

// Success builds a result acknowledging call.
func Success(call ToolInvocation, fields map[string]any) ToolResult {
	res := map[string]any{"result": "ok"}
	for k, v := range fields {
		res[k] = v
	}
	return ToolResult{ID: call.ID, Name: call.Name, Result: res}
}

// Failure builds a result reporting that call could not be handled.
func Failure(call ToolInvocation, err error) ToolResult {
	return ToolResult{
		ID:     call.ID,
		Name:   call.Name,
		Result: map[string]any{"error": err.Error()},
	}
}

// Voices are the prebuilt voices the service offers.
var Voices = []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede", "Leda", "Orus", "Zephyr"}

// ValidVoice reports whether name is a prebuilt voice.
func ValidVoice(name string) bool {
	for _, v := range Voices {
		if v == name {
			return true
		}
	}
	return false
}
