package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"assignly/internal/model"
)

func TestNextRoute(t *testing.T) {
	anon := Session{}
	student := Session{Authenticated: true, Role: model.RoleStudent}
	admin := Session{Authenticated: true, Role: model.RoleAdmin}

	tests := []struct {
		name string
		s    Session
		path string
		want string
	}{
		{"anonymous on protected route", anon, "/orders/new", RouteLogin},
		{"anonymous on login", anon, "/login", RouteLogin},
		{"anonymous on admin", anon, "/admin/orders", RouteLogin},
		{"loading never redirects", Session{Loading: true}, "/orders", "/orders"},
		{"student on login", student, "/login", RouteDashboard},
		{"admin on login", admin, "/login?next=x", RouteAdmin},
		{"student on root", student, "/", RouteDashboard},
		{"student on admin area", student, "/admin/orders", RouteDashboard},
		{"student on admin root", student, "/admin", RouteDashboard},
		{"student on lookalike path", student, "/administrator", "/administrator"},
		{"student stays on orders", student, "/orders/abc", "/orders/abc"},
		{"admin stays on admin", admin, "/admin/orders", "/admin/orders"},
		{"path is cleaned", student, "orders//new/", "/orders/new"},
		{"dot segments cannot reach admin", student, "/orders/../admin", RouteDashboard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRoute(tt.s, tt.path))
		})
	}
}
