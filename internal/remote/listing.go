package remote

import (
	"regexp"
	"strings"
)

// regexFractionalTime matches the numeric ctime/mtime fields emitted by find's %C@ / %T@.
var regexFractionalTime = regexp.MustCompile(`("(?:c|m)time":\s*-?\d+)\.\d+`)

// decodeListing parses the remote "one JSON object per line, each followed by
// a comma" format. The payload is bracketed and its final comma dropped, so a
// single malformed line fails the whole listing. body is raw after any
// textual normalization; raw is kept for the error.
func decodeListing(command, raw, body string, v any) error {
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, ",")
	if err := jsonUnmarshal([]byte("["+body+"]"), v); err != nil {
		return &ParseError{Command: command, Raw: raw, Err: err}
	}
	return nil
}

// stripFractionalSeconds truncates "mtime": 1700000000.123456 to "mtime": 1700000000.
func stripFractionalSeconds(raw string) string {
	return regexFractionalTime.ReplaceAllString(raw, "$1")
}

// trimDotSlash turns "./a/b" into "a/b".
func trimDotSlash(p string) string {
	p = strings.TrimSpace(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}
