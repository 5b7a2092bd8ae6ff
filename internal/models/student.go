package models

import "time"

// StudentStatus is the enrollment lifecycle state of a student.
type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentGraduated StudentStatus = "graduated"
	StudentWithdrawn StudentStatus = "withdrawn"
)

// Student is a minimal roster row. Full student record management lives
// in the academy CRUD service; the analytics core only needs identity,
// enrollment status and lead source.
type Student struct {
	ID         string        `db:"id" json:"id"`
	FullName   string        `db:"full_name" json:"full_name"`
	Status     StudentStatus `db:"status" json:"status"`
	LeadSource *string       `db:"lead_source" json:"lead_source,omitempty"`
	EnrolledAt *time.Time    `db:"enrolled_at" json:"enrolled_at,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}
