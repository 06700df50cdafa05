// Command neo runs the NEO companion: a realtime voice session with the
// Gemini Live service, driving a face renderer over websocket.
//
// Usage:
//
//	neo [flags]          serve the renderer feed and control API
//	neo voices           list prebuilt voices
//	neo config           print the effective configuration
//
// The API key is read from NEO_API_KEY, GEMINI_API_KEY or API_KEY.
// Without it the server still starts; waking reports the missing key.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
