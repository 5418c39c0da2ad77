// Package notify defines the notifications a run emits to the shell: console
// lines, console clears and toasts.
package notify

import (
	"fmt"
)

// Container is the UI surface a message targets.
type Container int

const (
	Console Container = iota
	Toast
)

var containerNames = []string{"console", "toast"}

func (c Container) String() string { return enumName(containerNames, int(c)) }

func (c Container) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Container) UnmarshalText(b []byte) error {
	return parseEnum(containerNames, "container", b, (*int)(c))
}

// Type is the severity of a message.
type Type int

const (
	Success Type = iota
	Warn
	Info
	Error
)

var typeNames = []string{"success", "warn", "info", "error"}

func (t Type) String() string { return enumName(typeNames, int(t)) }

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	return parseEnum(typeNames, "type", b, (*int)(t))
}

// Action tells the UI what to do besides showing the content.
type Action int

const (
	None Action = iota
	Clear
)

var actionNames = []string{"none", "clear"}

func (a Action) String() string { return enumName(actionNames, int(a)) }

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	return parseEnum(actionNames, "action", b, (*int)(a))
}

// Message is one notification.
type Message struct {
	Container Container `json:"container"`
	Type      Type      `json:"type"`
	Action    Action    `json:"action"`
	Content   *string   `json:"content,omitempty"`
}

// Text returns the content, or "" when there is none.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

func (m Message) String() string {
	s := m.Container.String() + "/" + m.Type.String()
	if m.Action != None {
		s += "/" + m.Action.String()
	}
	if m.Content != nil {
		s += ": " + *m.Content
	}
	return s
}

func content(text string) *string {
	if text == "" {
		return nil
	}
	return &text
}

// ConsoleClear asks the UI to clear the console.
func ConsoleClear() Message {
	return Message{Container: Console, Type: Info, Action: Clear}
}

func ConsoleInfo(text string) Message {
	return Message{Container: Console, Type: Info, Content: &text}
}

func ConsoleError(text string) Message {
	return Message{Container: Console, Type: Error, Content: &text}
}

func ToastSuccess(text string) Message {
	return Message{Container: Toast, Type: Success, Content: content(text)}
}

func ToastWarn(text string) Message {
	return Message{Container: Toast, Type: Warn, Content: content(text)}
}

func ToastInfo(text string) Message {
	return Message{Container: Toast, Type: Info, Content: content(text)}
}

func ToastError(text string) Message {
	return Message{Container: Toast, Type: Error, Content: content(text)}
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("%d", i)
	}
	return names[i]
}

func parseEnum(names []string, kind string, b []byte, dst *int) error {
	for i, name := range names {
		if name == string(b) {
			*dst = i
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", kind, b)
}
