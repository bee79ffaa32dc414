package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleTourManager Role = "tour_manager"
	RoleGuide       Role = "guide"
	RoleDriver      Role = "driver"
	RoleTourist     Role = "tourist"
)

// RolePermissions lists what a role may do with an itinerary.
type RolePermissions struct {
	CanCustomizeItinerary bool
	CanReviewItinerary    bool
	CanExportItinerary    bool
}

var rolePermissions = map[Role]RolePermissions{
	RoleAdmin:       {CanCustomizeItinerary: true, CanReviewItinerary: true, CanExportItinerary: true},
	RoleTourManager: {CanCustomizeItinerary: true, CanReviewItinerary: true, CanExportItinerary: true},
	RoleGuide:       {CanExportItinerary: true},
	RoleDriver:      {CanExportItinerary: true},
	RoleTourist:     {CanCustomizeItinerary: true, CanExportItinerary: true},
}

func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := rolePermissions[r]; !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

// Permissions returns the permission set of the role; unknown roles get none.
func (r Role) Permissions() RolePermissions {
	return rolePermissions[r]
}

// Actor is the person behind a request: an editor or a reviewer.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
