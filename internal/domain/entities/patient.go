package entities

import (
	"strings"
	"time"
)

// Patient is the read-only projection of the patient record the pipeline needs
type Patient struct {
	ID               string              `json:"id" db:"id"`
	FirstName        string              `json:"first_name" db:"first_name"`
	LastName         string              `json:"last_name" db:"last_name"`
	Gender           string              `json:"gender" db:"gender"`
	BirthDate        *time.Time          `json:"birth_date,omitempty" db:"birth_date"`
	Email            string              `json:"email" db:"email"`
	Phone            string              `json:"phone" db:"phone"`
	PreferredChannel NotificationChannel `json:"preferred_channel" db:"preferred_channel"`
}

// FullName returns the display name used on the operator queue
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// AgeAt returns whole years between the birth date and now.
// ok is false when the birth date is unknown.
func (p *Patient) AgeAt(now time.Time) (age int, ok bool) {
	if p.BirthDate == nil || p.BirthDate.IsZero() {
		return 0, false
	}
	birth := *p.BirthDate
	age = now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age, true
}
