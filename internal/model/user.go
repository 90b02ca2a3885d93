package model

import "time"

// Roles carried in the JWT "role" claim.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// User represents an account record as stored in the `users` table.
// Handlers define their own response shapes; this struct never leaves
// the server as-is because it carries the password hash.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Name         – display name.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – user or admin.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    Name         string    // users.name
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}
