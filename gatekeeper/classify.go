package gatekeeper

import "fmt"

const (
	// LoginPath receives the authorization code callback.
	LoginPath = "/_login"
	// LogoutPath ends the session.
	LogoutPath = "/_logout"
)

// Route is what a request is handled as.
type Route int

const (
	RouteSessionCheck Route = iota
	RouteLoginCallback
	RouteLogout
)

func (r Route) String() string {
	switch r {
	case RouteSessionCheck:
		return "session-check"
	case RouteLoginCallback:
		return "login-callback"
	case RouteLogout:
		return "logout"
	}
	return fmt.Sprintf("Route(%d)", int(r))
}

// Classify routes a request path. Only exact matches on the reserved paths
// count, everything else is a session check.
func Classify(path string) Route {
	switch path {
	case LoginPath:
		return RouteLoginCallback
	case LogoutPath:
		return RouteLogout
	}
	return RouteSessionCheck
}
