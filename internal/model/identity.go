package model

import "time"

// IdentityKind selects how the resolver provisions an unseen name.
type IdentityKind int

const (
	KindWorker IdentityKind = iota
	KindSupervisor
)

func (k IdentityKind) String() string {
	if k == KindSupervisor {
		return "supervisor"
	}
	return "worker"
}

// Identity worker or supervisor, table identities
type Identity struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"                json:"id"`
	Username     string      `gorm:"type:varchar(150);not null;uniqueIndex"  json:"username"`
	FirstName    string      `gorm:"type:varchar(150);not null;default:''"   json:"first_name"`
	LastName     string      `gorm:"type:varchar(150);not null;default:''"   json:"last_name"`
	NameKey      string      `gorm:"type:varchar(300);not null;uniqueIndex"  json:"-"`
	Password     string      `gorm:"type:varchar(128);not null"              json:"-"`
	IsActive     bool        `gorm:"not null;default:true"                   json:"is_active"`
	SupervisorID *int64      `json:"supervisor_id,omitempty"`
	Skills       StringArray `gorm:"type:text[];not null;default:'{}'"       json:"skills"`
	CreatedAt    time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"      json:"created_at"`
	UpdatedAt    time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"      json:"updated_at"`
}

func (Identity) TableName() string { return "identities" }

// DisplayName joins first and last name; falls back to the username.
func (i *Identity) DisplayName() string {
	switch {
	case i.FirstName != "" && i.LastName != "":
		return i.FirstName + " " + i.LastName
	case i.FirstName != "":
		return i.FirstName
	case i.LastName != "":
		return i.LastName
	}
	return i.Username
}

// Role capability bundle, table roles
type Role struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"              json:"id"`
	Name         string      `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	Capabilities StringArray `gorm:"type:text[];not null;default:'{}'"     json:"capabilities"`
}

func (Role) TableName() string { return "roles" }

// IdentityRole membership, table identity_roles
type IdentityRole struct {
	IdentityID int64 `gorm:"primaryKey" json:"identity_id"`
	RoleID     int64 `gorm:"primaryKey" json:"role_id"`
}

func (IdentityRole) TableName() string { return "identity_roles" }

// Seeded role names.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleMonitoring = "monitoring"
	RolePlanning   = "planning"
)

// Capabilities checked by the core and the HTTP surface.
const (
	CapShiftView       = "shift.view"
	CapExchangeRequest = "exchange.request"
	CapExchangeAny     = "exchange.any"
	CapExchangeHistory = "exchange.history"
	CapImportRun       = "import.run"
	CapExportRun       = "export.run"
)
