package model

import "time"

// User is the subset of the `users` table the coordinator needs: enough to
// verify that a reservation references an existing account.  Account
// management itself lives outside this service.
type User struct {
    ID        string    `json:"id"`         // users.id
    Username  string    `json:"username"`   // users.username
    Email     string    `json:"email"`      // users.email
    CreatedAt time.Time `json:"created_at"` // users.created_at
}
