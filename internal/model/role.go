package model

import (
	"time"

	"github.com/google/uuid"
)

// Well-known page names. Permission rows may name any page; these are the ones the API guards.
const (
	PageDashboard = "dashboard"
	PageProfile   = "profile"
	PageValves    = "valves"
	PageRoles     = "roles"
	PageUsers     = "users"
)

// KnownPages lists every page the API itself guards.
var KnownPages = []string{PageDashboard, PageProfile, PageValves, PageRoles, PageUsers}

// Action is one of the four capabilities a Permission row grants.
type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Role represents a named bundle of page-level capabilities
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"` // Prevent deletion of built-in roles
	Permissions []Permission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission grants view/add/edit/delete on one page to one role.
// At most one row per role carries IsLoginPage.
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RoleID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_permissions_role_page" json:"role_id"`
	Page        string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_permissions_role_page" json:"page"`
	CanView     bool      `gorm:"not null;default:false" json:"can_view"`
	CanAdd      bool      `gorm:"not null;default:false" json:"can_add"`
	CanEdit     bool      `gorm:"not null;default:false" json:"can_edit"`
	CanDelete   bool      `gorm:"not null;default:false" json:"can_delete"`
	IsLoginPage bool      `gorm:"not null;default:false" json:"is_login_page"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Allows reports the flag for action; unknown actions are never allowed.
func (p Permission) Allows(action Action) bool {
	switch action {
	case ActionView:
		return p.CanView
	case ActionAdd:
		return p.CanAdd
	case ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	}
	return false
}
