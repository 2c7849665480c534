package stream

import (
	"bytes"
	"strings"
)

// Parser maintains state across chunks to handle partial SSE lines.
type Parser struct {
	buffer     []byte
	frameIndex int
	eventKind  string // current event: field value
}

func NewParser() *Parser {
	return &Parser{}
}

// ParseChunk processes raw bytes from the stream and yields complete frames.
// Handles partial lines that span multiple chunks. Frames come out in exactly
// the order their bytes were received.
func (p *Parser) ParseChunk(chunk []byte) []Frame {
	p.buffer = append(p.buffer, chunk...)
	var frames []Frame

	for {
		idx := bytes.IndexByte(p.buffer, '\n')
		if idx == -1 {
			break
		}

		line := string(p.buffer[:idx])
		p.buffer = p.buffer[idx+1:]
		line = strings.TrimRight(line, "\r")

		if line == "" {
			// Empty line = event separator, reset event kind
			p.eventKind = ""
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			p.eventKind = strings.TrimSpace(line[7:])
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			dataStr := line[6:]
			p.frameIndex++

			kind := p.eventKind
			if kind == "" {
				kind = inferKind(dataStr)
			}

			frames = append(frames, Frame{
				Index:    p.frameIndex,
				Kind:     kind,
				RawData:  dataStr,
				RawBytes: len(line) + 1, // +1 for newline
			})
		}
	}

	return frames
}

// inferKind extracts the "type" field from JSON data without full parsing,
// for backends that tag the kind inside the payload instead of the event: line.
func inferKind(data string) string {
	idx := strings.Index(data, `"type"`)
	if idx == -1 {
		return "unknown"
	}

	rest := data[idx+6:]
	rest = strings.TrimLeft(rest, " \t:")
	rest = strings.TrimLeft(rest, " \t")

	if len(rest) > 0 && rest[0] == '"' {
		end := strings.IndexByte(rest[1:], '"')
		if end >= 0 {
			return rest[1 : end+1]
		}
	}
	return "unknown"
}
