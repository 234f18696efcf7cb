package frame

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Marker    = '#'
	Delimiter = ","
	// Terminator ends every frame written to the link. Decode accepts a bare
	// newline as well.
	Terminator = "\r\n"
)

// Command tags used by the configuration protocol.
const (
	TagStatusRequest = "#CEPSR"
	TagStatus        = "#CEPSD"
	TagAck           = "#CMDOK"
	TagReadRequest   = "#CEPRD"
	TagData          = "#CEPDT"
	TagWriteRequest  = "#CEPWR"
)

// StatusReady is the status code carried by TagStatus when the radio accepts
// memory commands.
const StatusReady = "00"

var ErrMalformedFrame = errors.New("frame: malformed frame")

// Message is one decoded line of the link.
type Message struct {
	Tag  string
	Args []string
}

func (m Message) String() string {
	return Encode(m.Tag, m.Args...)
}

// Arg returns the i-th argument or "" when absent.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// Encode builds one terminated frame. Arguments are written verbatim.
func Encode(tag string, args ...string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, a := range args {
		b.WriteString(Delimiter)
		b.WriteString(a)
	}
	b.WriteString(Terminator)
	return b.String()
}

// Decode parses one line. Only the tag is validated.
func Decode(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, Delimiter)
	tag := fields[0]
	if !ValidTag(tag) {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformedFrame, line)
	}
	msg := Message{Tag: tag}
	if len(fields) > 1 {
		msg.Args = fields[1:]
	}
	return msg, nil
}

// ValidTag reports whether tag is the marker followed by 4-5 uppercase letters.
func ValidTag(tag string) bool {
	if len(tag) < 5 || len(tag) > 6 || tag[0] != Marker {
		return false
	}
	for i := 1; i < len(tag); i++ {
		if tag[i] < 'A' || tag[i] > 'Z' {
			return false
		}
	}
	return true
}
