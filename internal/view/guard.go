package view

import (
	"errors"
	"sort"
)

const (
	PathHome   = "/"
	PathLogin  = "/login"
	PathSignup = "/signup"
)

// ErrUnknownPath is returned by Route for paths outside the table.
var ErrUnknownPath = errors.New("unknown path")

// ViewKind names the view a page renders.
type ViewKind string

const (
	ViewLoading   ViewKind = "loading"
	ViewProtected ViewKind = "protected"
	ViewLanding   ViewKind = "landing"
	ViewLogin     ViewKind = "login"
	ViewSignup    ViewKind = "signup"
)

// Decision is the outcome for one (path, state) pair. When Redirect is set the
// View is empty and the navigation replaces history if Replace is true.
type Decision struct {
	View     ViewKind `json:"view,omitempty"`
	Redirect string   `json:"redirect,omitempty"`
	Replace  bool     `json:"replace"`
}

func (d Decision) IsRedirect() bool {
	return d.Redirect != ""
}

// Navigator performs client navigations. replace means the current history
// entry is replaced rather than pushed.
type Navigator interface {
	Navigate(path string, replace bool)
}

var (
	loading    = Decision{View: ViewLoading}
	toHome     = Decision{Redirect: PathHome, Replace: true}
	routeTable = map[string]map[AuthState]Decision{
		PathHome: {
			StateAuthenticated:   {View: ViewProtected},
			StateUnauthenticated: {View: ViewLanding},
			StateUnknown:         loading,
		},
		PathLogin: {
			StateAuthenticated:   toHome,
			StateUnauthenticated: {View: ViewLogin},
			StateUnknown:         loading,
		},
		PathSignup: {
			StateAuthenticated:   toHome,
			StateUnauthenticated: {View: ViewSignup},
			StateUnknown:         loading,
		},
	}
)

// Route selects the view for path under state.
func Route(path string, state AuthState) (Decision, error) {
	byState, ok := routeTable[path]
	if !ok {
		return Decision{}, ErrUnknownPath
	}
	d, ok := byState[state]
	if !ok {
		return Decision{}, ErrUnknownPath
	}
	return d, nil
}

// RouteEntry is one row of the routing table.
type RouteEntry struct {
	Path     string
	State    AuthState
	Decision Decision
}

// Routes enumerates the table ordered by path, then state.
func Routes() []RouteEntry {
	out := make([]RouteEntry, 0, len(routeTable)*3)
	for path, byState := range routeTable {
		for state, d := range byState {
			out = append(out, RouteEntry{Path: path, State: state, Decision: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].State < out[j].State
	})
	return out
}
