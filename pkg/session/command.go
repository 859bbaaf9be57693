package session

import (
	"bytes"
	"strings"
)

// Command is a decoded command token
type Command int

const (
	Unknown         Command = iota
	List                    // ls <dir>
	ChangeDirectory         // cd <path>
	Pull                    // cp <path>, server sends the file
	Push                    // sn <name>, server receives the file
	Terminate               // exit <ignored>
)

var keywords = map[string]Command{
	"ls":   List,
	"cd":   ChangeDirectory,
	"cp":   Pull,
	"sn":   Push,
	"exit": Terminate,
}

// String returns string representation of Command
func (c Command) String() string {
	switch c {
	case List:
		return "List"
	case ChangeDirectory:
		return "ChangeDirectory"
	case Pull:
		return "Pull"
	case Push:
		return "Push"
	case Terminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// Keyword returns the wire token of c, empty for Unknown
func (c Command) Keyword() string {
	for k, v := range keywords {
		if v == c {
			return k
		}
	}
	return ""
}

// ParseCommand decodes a command token. Matching is case-sensitive.
func ParseCommand(token string) Command {
	if c, ok := keywords[token]; ok {
		return c
	}
	return Unknown
}

// Request is one decoded command frame
type Request struct {
	Command  Command
	Token    string // Command token as received
	Argument string
}

// ParseRequest strips trailing NULs from payload and splits it on the first space
func ParseRequest(payload []byte) Request {
	text := string(bytes.TrimRight(payload, "\x00"))
	token, arg, _ := strings.Cut(text, " ")
	return Request{
		Command:  ParseCommand(token),
		Token:    token,
		Argument: arg,
	}
}

// Text renders a request the way a peer sends it, NUL-terminated
func Text(c Command, argument string) []byte {
	return append([]byte(c.Keyword()+" "+argument), 0)
}
