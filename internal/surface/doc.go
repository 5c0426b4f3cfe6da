// Package surface connects human operators to the broker.
//
// A human surface is any UI that lists pending tool calls and answers them.
// Surfaces speak JSON messages of the form {"type": "...", ...}, either over
// the websocket at /ui/ws or in-process through Handler.Handle.
//
// Inbound messages:
//
//	getToolCalls                          -> toolCalls{data}
//	submitFeedback{toolCallId, feedback, attachments}
//	                                      -> feedbackSubmitted{success, toolCallId}
//	cancelToolCall{toolCallId, reason}    -> toolCallCancelled{success, toolCallId}
//	getSettings                           -> settings{data}
//	updateSettings{settings}              -> [serverRestarting, serverRestarted,] settingsUpdated
//	restartServer                         -> serverRestarting, serverRestarted
//	updateTimeout{timeout}                -> settingsUpdated
//	getConfig                             -> config{mcpServerUrl}
//
// Pushed to every websocket client as they happen:
//
//	tool-call{data}, tool-call-updated{data}, portChanged{port, serverUrl}
//
// Timeouts in settings are milliseconds. Tool call payloads carry
// messageHtml and detailsHtml, the Markdown message and context rendered to
// HTML with raw HTML stripped.
//
// Attachments are {name, type, size, data} where data is base64, optionally
// as a data URL. When a response carries attachments it is stored as a JSON
// document {"text": ..., "attachments": [...]}; otherwise the plain text is
// stored.
package surface
