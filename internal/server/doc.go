// Package server implements the MCP (Model Context Protocol) server that
// exposes the grader as tools.
//
// An MCP client (an assistant helping to mark a pile of exams, for
// example) can locate a sheet in a photo, inspect the detected bubbles,
// check an answer key and grade the sheet, all over one stdio session.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - omr_image_info: Dimensions, format and file size
//   - omr_locate_sheet: Sheet corners and the rectified sheet
//   - omr_detect_bubbles: Bubble segmentation without grading
//   - omr_parse_key: Parse and normalize an answer key
//   - omr_grade: Grade a sheet against a key
//   - omr_view_question: Zoomed crop of one graded question
//
// Every grading tool accepts preset, questions and options overrides; the
// server's configuration fills in the rest.
//
// # Image Caching
//
// Images are cached by path for the lifetime of the server, so locating,
// inspecting and grading the same photo decodes it once.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string, e.g. "locating_document: answer sheet
//     boundary not found"
//
// # Usage
//
//	srv := server.New(cfg.Grading, server.WithLogger(logger))
//	if err := srv.Run(); err != nil {
//	    logger.Error("server stopped", "error", err)
//	}
package server
