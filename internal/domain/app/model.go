package app

import "time"

// App is a registered client application. Its secret doubles as the
// HMAC key for identity tokens issued on successful activations.
type App struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Secret    string    `db:"app_secret" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
