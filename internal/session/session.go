// Package session decides where a client should be sent for a requested route.
package session

import (
	"path"
	"strings"

	"assignly/internal/model"
)

const (
	RouteLogin     = "/login"
	RouteDashboard = "/dashboard"
	RouteAdmin     = "/admin"
)

// Session is the client's view of its authentication state.
type Session struct {
	// Loading is set while the client is still restoring a stored session.
	// No redirect is issued until it settles.
	Loading       bool
	Authenticated bool
	Role          model.Role
}

// Home is the landing route for the session's role.
func (s Session) Home() string {
	if s.Role == model.RoleAdmin {
		return RouteAdmin
	}
	return RouteDashboard
}

// NextRoute returns the route the client should be on after requesting p.
// It returns the cleaned p itself when no redirect is needed.
func NextRoute(s Session, p string) string {
	p = clean(p)
	if s.Loading {
		return p
	}
	if !s.Authenticated {
		if p == RouteLogin {
			return p
		}
		return RouteLogin
	}
	if p == RouteLogin || p == "/" {
		return s.Home()
	}
	if s.Role != model.RoleAdmin && underAdmin(p) {
		return RouteDashboard
	}
	return p
}

func clean(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func underAdmin(p string) bool {
	return p == RouteAdmin || strings.HasPrefix(p, RouteAdmin+"/")
}
