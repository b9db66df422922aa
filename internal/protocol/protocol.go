// Package protocol implements the ampersand-framed text protocol spoken between
// the antenna server and its single remote client.
//
// Requests are `&<verb> <args...>`, responses are `&<STATUS>|<body>`. The
// characters `&` and `|` are reserved and are never escaped.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// FrameStart opens every frame in both directions.
	FrameStart = "&"
	// StatusSeparator splits a response status tag from its body.
	StatusSeparator = "|"
	// Busy is written unframed to a connection rejected because a client is already attached.
	Busy = "BUSY"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrReservedCharacter  = errors.New("reserved character in frame text")
	ErrEmptyCommand       = errors.New("empty command")
	ErrUnknownStatus      = errors.New("unknown response status")
	ErrMissingStatusField = errors.New("response missing status separator")
)

// Status tags every server-to-client message.
type Status string

const (
	StatusPrint   Status = "PRINT"
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

var validStatuses = map[Status]struct{}{
	StatusPrint:   {},
	StatusOK:      {},
	StatusWarning: {},
	StatusError:   {},
}

// Valid reports whether s is one of the four wire statuses.
func (s Status) Valid() bool {
	_, ok := validStatuses[s]
	return ok
}

// Response is the only shape ever written to the client.
type Response struct {
	Status Status
	Body   string
}

func OK(body string) Response      { return Response{Status: StatusOK, Body: body} }
func Print(body string) Response   { return Response{Status: StatusPrint, Body: body} }
func Warning(body string) Response { return Response{Status: StatusWarning, Body: body} }
func Error(body string) Response   { return Response{Status: StatusError, Body: body} }

// Encode renders the response as one wire frame.
func (r Response) Encode() string {
	return Encode(r.Status, r.Body)
}

func (r Response) String() string {
	return string(r.Status) + StatusSeparator + r.Body
}

// Encode builds `&STATUS|body`. Reserved characters inside body are a caller error
// and are written as-is.
func Encode(status Status, body string) string {
	return FrameStart + string(status) + StatusSeparator + body
}

// DecodeResponse parses one response frame body (with or without the leading `&`).
func DecodeResponse(frame string) (Response, error) {
	frame = strings.TrimPrefix(frame, FrameStart)
	status, body, found := strings.Cut(frame, StatusSeparator)
	if !found {
		return Response{}, fmt.Errorf("%w: %q", ErrMissingStatusField, frame)
	}
	s := Status(status)
	if !s.Valid() {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return Response{Status: s, Body: body}, nil
}

// Command is one client request, parsed from a frame body split on whitespace.
type Command struct {
	Verb string
	Args []string
}

// ParseCommand splits a frame body into verb and arguments.
func ParseCommand(frame string) (Command, error) {
	fields := strings.Fields(strings.TrimPrefix(frame, FrameStart))
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}
	if ContainsReserved(strings.Join(fields, " ")) {
		return Command{}, fmt.Errorf("%w: %q", ErrReservedCharacter, frame)
	}
	return Command{Verb: fields[0], Args: fields[1:]}, nil
}

// NewCommand builds a command and rejects reserved characters in any token.
func NewCommand(verb string, args ...string) (Command, error) {
	verb = strings.TrimSpace(verb)
	if verb == "" {
		return Command{}, ErrEmptyCommand
	}
	for _, token := range append([]string{verb}, args...) {
		if ContainsReserved(token) {
			return Command{}, fmt.Errorf("%w: %q", ErrReservedCharacter, token)
		}
		if strings.ContainsAny(token, " \t\r\n") {
			return Command{}, fmt.Errorf("token %q contains whitespace", token)
		}
	}
	return Command{Verb: verb, Args: append([]string(nil), args...)}, nil
}

// String renders the command as it appears inside a frame.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Verb
	}
	return c.Verb + " " + strings.Join(c.Args, " ")
}

// Encode renders the command as one request frame.
func (c Command) Encode() string {
	return FrameStart + c.String()
}

// Split isolates the frames contained in one raw read. Text before the first
// `&` is noise and is discarded. A chunk without any `&` is malformed.
// Frames split across two reads are not reassembled.
func Split(chunk string) ([]string, error) {
	if !strings.Contains(chunk, FrameStart) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedFrame, chunk)
	}
	segments := strings.Split(chunk, FrameStart)[1:]
	frames := make([]string, 0, len(segments))
	frames = append(frames, segments...)
	return frames, nil
}

var reservedReplacer = strings.NewReplacer(FrameStart, "+", StatusSeparator, "/")

// Sanitize replaces reserved characters so text can travel inside a body.
func Sanitize(text string) string {
	return reservedReplacer.Replace(text)
}

// ContainsReserved reports whether text holds a frame or status delimiter.
func ContainsReserved(text string) bool {
	return strings.ContainsAny(text, FrameStart+StatusSeparator)
}
