// Package hyprevents decodes the compositor's event socket line protocol
// into typed events.
//
// The wire format is one record per line: NAME>>PAYLOAD, where PAYLOAD is a
// comma-separated argument list. Trailing free-text arguments (window titles,
// monitor descriptions) may themselves contain commas, so each decoder splits
// with the exact arity it expects.
package hyprevents

import (
	stderrors "errors"
	"strconv"
	"strings"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

// ErrUnknownEvent is returned for wire names this daemon does not consume.
// Callers skip these records without logging above debug level.
var ErrUnknownEvent = stderrors.New("unknown event name")

// Decode parses one event socket line. Records with unknown names return
// ErrUnknownEvent; malformed payloads of known names return a parse error
// carrying the offending line.
func Decode(line string) (Event, error) {
	name, payload, found := strings.Cut(line, ">>")
	if !found {
		return nil, ferrors.ParseError("event record missing separator").
			WithContext("line", line).
			Build()
	}

	switch name {
	case "monitoraddedv2":
		return decodeMonitorV2(name, payload, func(id int, mon, desc string) Event {
			return MonitorAdded{ID: id, Name: mon, Description: desc}
		})
	case "monitorremovedv2":
		return decodeMonitorV2(name, payload, func(id int, mon, desc string) Event {
			return MonitorRemoved{ID: id, Name: mon, Description: desc}
		})
	case "monitoradded":
		return MonitorAdded{ID: UnknownMonitorID, Name: payload}, nil
	case "monitorremoved":
		return MonitorRemoved{ID: UnknownMonitorID, Name: payload}, nil
	case "createworkspacev2":
		return decodeWorkspaceV2(name, payload, func(id int, ws string) Event {
			return WorkspaceCreated{ID: id, Name: ws}
		})
	case "destroyworkspacev2":
		return decodeWorkspaceV2(name, payload, func(id int, ws string) Event {
			return WorkspaceDestroyed{ID: id, Name: ws}
		})
	case "moveworkspacev2":
		args := strings.SplitN(payload, ",", 3)
		if len(args) != 3 {
			return nil, parseErr(name, payload, "expected id,name,monitor")
		}
		id, err := parseID(name, payload, args[0])
		if err != nil {
			return nil, err
		}
		return WorkspaceMoved{ID: id, Name: args[1], Monitor: args[2]}, nil
	case "renameworkspace":
		// The new name may contain commas.
		args := strings.SplitN(payload, ",", 2)
		if len(args) != 2 {
			return nil, parseErr(name, payload, "expected id,newname")
		}
		id, err := parseID(name, payload, args[0])
		if err != nil {
			return nil, err
		}
		return WorkspaceRenamed{ID: id, Name: args[1]}, nil
	case "openwindow":
		// Title is free text and may contain commas.
		args := strings.SplitN(payload, ",", 4)
		if len(args) != 4 {
			return nil, parseErr(name, payload, "expected address,workspace,class,title")
		}
		return WindowOpened{Address: args[0], Workspace: args[1], Class: args[2], Title: args[3]}, nil
	case "closewindow":
		if payload == "" {
			return nil, parseErr(name, payload, "expected address")
		}
		return WindowClosed{Address: payload}, nil
	case "movewindowv2":
		args := strings.SplitN(payload, ",", 3)
		if len(args) != 3 {
			return nil, parseErr(name, payload, "expected address,id,name")
		}
		id, err := parseID(name, payload, args[1])
		if err != nil {
			return nil, err
		}
		return WindowMoved{Address: args[0], WorkspaceID: id, WorkspaceName: args[2]}, nil
	case "workspacev2":
		return decodeWorkspaceV2(name, payload, func(id int, ws string) Event {
			return WorkspaceFocused{ID: id, Name: ws}
		})
	case "focusedmonv2":
		args := strings.SplitN(payload, ",", 2)
		if len(args) != 2 {
			return nil, parseErr(name, payload, "expected monitor,id")
		}
		id, err := parseID(name, payload, args[1])
		if err != nil {
			return nil, err
		}
		return MonitorFocused{Monitor: args[0], WorkspaceID: id}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func decodeMonitorV2(name, payload string, build func(int, string, string) Event) (Event, error) {
	// Description is free text and may contain commas.
	args := strings.SplitN(payload, ",", 3)
	if len(args) != 3 {
		return nil, parseErr(name, payload, "expected id,name,description")
	}
	id, err := parseID(name, payload, args[0])
	if err != nil {
		return nil, err
	}
	return build(id, args[1], args[2]), nil
}

func decodeWorkspaceV2(name, payload string, build func(int, string) Event) (Event, error) {
	args := strings.SplitN(payload, ",", 2)
	if len(args) != 2 {
		return nil, parseErr(name, payload, "expected id,name")
	}
	id, err := parseID(name, payload, args[0])
	if err != nil {
		return nil, err
	}
	return build(id, args[1]), nil
}

func parseID(name, payload, raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryParse, "event id is not numeric").
			Warning().
			WithContext("event", name).
			WithContext("payload", payload).
			Build()
	}
	return id, nil
}

func parseErr(name, payload, detail string) error {
	return ferrors.ParseError(detail).
		WithContext("event", name).
		WithContext("payload", payload).
		Build()
}
