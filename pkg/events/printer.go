package events

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var levelMarks = map[Level]string{
	LevelInfo:    "•",
	LevelSuccess: "✓",
	LevelWarning: "!",
	LevelError:   "✗",
}

// PrinterFunc returns a handler that writes a one-line summary of each
// event to w. With full set every event is dumped as YAML instead.
// Replies are left to the caller, which prints them in full.
func PrinterFunc(w io.Writer, full bool) func(e Event) error {
	return func(e Event) error {
		if full {
			v, err := yaml.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "---\n%s", v)
			return err
		}

		var line string
		switch e.Type {
		case EventTypePersonaCreated:
			line = fmt.Sprintf("Created %s (%s)", e.PersonaName, e.PersonaType)
		case EventTypePersonaChanged:
			if e.PersonaID == "" {
				line = "No persona selected"
			} else {
				line = fmt.Sprintf("Now chatting with %s", e.PersonaName)
			}
		case EventTypePersonaDeleted:
			line = fmt.Sprintf("Deleted %s", e.PersonaName)
		case EventTypeSendFailed:
			line = fmt.Sprintf("Could not reach the model: %s", e.Error)
		case EventTypeSendSucceeded:
			return nil
		default:
			line = e.Text
		}
		if line == "" {
			return nil
		}
		mark, ok := levelMarks[e.Level]
		if !ok {
			mark = levelMarks[LevelInfo]
		}
		_, err := fmt.Fprintf(w, "%s %s\n", mark, line)
		return err
	}
}

// Drain feeds events from ch to handler until ch closes or ctx is done.
// Handler errors stop the loop.
func Drain(ctx context.Context, ch <-chan Event, handler func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handler(e); err != nil {
				return err
			}
		}
	}
}
