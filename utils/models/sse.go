package models

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event: an optional event name and the joined
// data lines.
type sseEvent struct {
	Event string
	Data  string
}

// readSSE calls fn for each event in r until r is exhausted or fn returns
// an error. Comment lines and unknown fields are ignored.
func readSSE(r io.Reader, fn func(sseEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		name string
		data []string
	)
	flush := func() error {
		if name == "" && len(data) == 0 {
			return nil
		}
		ev := sseEvent{Event: name, Data: strings.Join(data, "\n")}
		name, data = "", nil
		return fn(ev)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
