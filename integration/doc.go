// Package integration wires threadbot's pieces together for the CLI and for
// third-party Go programs that want the same assistant: LLM client, canvas
// store, canvas editor, tool registry and responder.
//
// Configuration is explicit via Config.Set(...) / Config.Overrides, layered over
// whatever the host loaded into the process-global Viper instance.
// Built-in tools can be narrowed with Config.BuiltinToolNames.
package integration
