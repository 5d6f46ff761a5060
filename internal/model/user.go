package model

import "time"

// Staff roles accepted by the role middleware.
const (
    RoleAdmin = "ADMIN"
    RoleStaff = "STAFF"
)

// StaffUser is a venue staff or admin account as stored in the
// `staff_users` table.  Admins run allocations and read statistics;
// staff perform check-ins.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique login address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or STAFF.
//  IsActive     – whether the account may log in.
//  CreatedAt    – timestamp of creation.
type StaffUser struct {
    ID           uint64    // staff_users.id
    Email        string    // staff_users.email
    PasswordHash string    // staff_users.password_hash
    Role         string    // staff_users.role
    IsActive     bool      // staff_users.is_active
    CreatedAt    time.Time // staff_users.created_at_ms
}
