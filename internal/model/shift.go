package model

import "time"

// Direction work channel of a shift.
type Direction string

const (
	DirectionCalls   Direction = "calls"
	DirectionTickets Direction = "tickets"
	DirectionChats   Direction = "chats"
)

// Directions lists every canonical direction code.
var Directions = []Direction{DirectionCalls, DirectionTickets, DirectionChats}

// Valid reports whether d is a canonical code.
func (d Direction) Valid() bool {
	for _, v := range Directions {
		if v == d {
			return true
		}
	}
	return false
}

// Status occupancy state of a shift.
type Status string

const (
	StatusWork     Status = "work"
	StatusDayOff   Status = "day_off"
	StatusVacation Status = "vacation"
	StatusSick     Status = "sick"
	StatusTraining Status = "training"
	StatusMeeting  Status = "meeting"
	StatusOnboard  Status = "onboard"
	StatusMentor   Status = "mentor"
)

// Statuses lists every canonical status code.
var Statuses = []Status{
	StatusWork, StatusDayOff, StatusVacation, StatusSick,
	StatusTraining, StatusMeeting, StatusOnboard, StatusMentor,
}

// Valid reports whether s is a canonical code.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// NonWorking is true for statuses that block an exchange.
func (s Status) NonWorking() bool {
	switch s {
	case StatusVacation, StatusSick, StatusDayOff:
		return true
	}
	return false
}

// Shift one scheduled interval, table shifts
type Shift struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"                     json:"id"`
	IdentityID int64     `gorm:"not null;index"                               json:"identity_id"`
	Start      time.Time `gorm:"column:start_at;not null"                     json:"start"`
	End        time.Time `gorm:"column:end_at;not null"                       json:"end"`
	Direction  Direction `gorm:"type:varchar(20);not null;default:'calls'"    json:"direction"`
	Status     Status    `gorm:"type:varchar(20);not null;default:'work'"     json:"status"`
	Activity   string    `gorm:"type:varchar(100);not null;default:''"        json:"activity"`
	Comment    *string   `gorm:"type:text"                                    json:"comment,omitempty"`
	ExternalID *string   `gorm:"type:varchar(64)"                             json:"external_id,omitempty"`
	Version    int       `gorm:"not null;default:1"                           json:"version"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"           json:"created_at"`

	Identity *Identity `gorm:"foreignKey:IdentityID;references:ID" json:"identity,omitempty"`
}

func (Shift) TableName() string { return "shifts" }

// Duration of the interval.
func (s *Shift) Duration() time.Duration { return s.End.Sub(s.Start) }
