package models

// User represents a stored account.
type User struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	Generation   int64  `db:"generation"`
	CreatedAt    int64  `db:"created_at"`
}

// CredentialsRequest carries a username and password. It is shared by the
// create, login, remove and invalidate-tokens operations.
type CredentialsRequest struct {
	Username string `form:"username" json:"username" validate:"required,min=3,max=20"`
	Password string `form:"password" json:"password" validate:"required,min=6,max=20"`
}

// ChangePasswordRequest defines the structure for a password change request.
type ChangePasswordRequest struct {
	Username    string `form:"username" json:"username" validate:"required,min=3,max=20"`
	Password    string `form:"password" json:"password" validate:"required,min=6,max=20"`
	NewPassword string `form:"newPassword" json:"newPassword" validate:"required,min=6,max=20"`
}

// RandomUser is a randomly selected username together with the ids of its posts.
type RandomUser struct {
	Username string  `json:"username"`
	PostIDs  []int64 `json:"posts_ids"`
}
