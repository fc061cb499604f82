// Package logging sets up structured slog logging for kbqa.
//
// Indexing runs log JSON events to a size-rotated file under ~/.kbqa/logs/
// and, unless disabled, mirror them to stderr. The MCP server mode never
// writes to stderr or stdout because stdio carries the protocol stream.
package logging
