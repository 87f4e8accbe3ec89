package bot

import (
	"errors"
	"strconv"
	"strings"
)

// Callback payload wire shapes.
const (
	prefixPage = "/page "
	DataDelete = "/delete"
	DataNoop   = "no_action"
)

// ErrMalformedCallback is returned for payloads that match no known shape.
var ErrMalformedCallback = errors.New("malformed callback data")

// CallbackKind identifies the action a button press requests.
type CallbackKind int

const (
	CallbackPage CallbackKind = iota + 1
	CallbackDelete
	CallbackNoop
)

func (k CallbackKind) String() string {
	switch k {
	case CallbackPage:
		return "page"
	case CallbackDelete:
		return "delete"
	case CallbackNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Action is a decoded callback payload.
type Action struct {
	Kind    CallbackKind
	QueryID string // CallbackPage only
	Page    int    // CallbackPage only
}

// PageData encodes a page navigation payload.
func PageData(queryID string, page int) string {
	return prefixPage + queryID + " " + strconv.Itoa(page)
}

// ParseCallback decodes a callback payload. Page payloads must carry exactly
// a query id and a non-negative page index separated by single spaces.
func ParseCallback(data string) (Action, error) {
	switch {
	case data == DataDelete:
		return Action{Kind: CallbackDelete}, nil
	case data == DataNoop:
		return Action{Kind: CallbackNoop}, nil
	case strings.HasPrefix(data, prefixPage):
		parts := strings.Split(data, " ")
		if len(parts) != 3 || parts[1] == "" {
			return Action{}, ErrMalformedCallback
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil || page < 0 {
			return Action{}, ErrMalformedCallback
		}
		return Action{Kind: CallbackPage, QueryID: parts[1], Page: page}, nil
	default:
		return Action{}, ErrMalformedCallback
	}
}
