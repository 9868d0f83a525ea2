package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

// Patient is the registry's view of a patient. Only the fields the
// scheduling engine consults are loaded.
type Patient struct {
	ID                   uuid.UUID  `json:"id"`
	TenantID             string     `json:"-"`
	DisplayName          string     `json:"display_name"`
	Active               bool       `json:"active"`
	FirstAppointmentDate *time.Time `json:"first_appointment_date,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}
