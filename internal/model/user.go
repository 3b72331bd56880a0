package model

// User is a student account held by the freeExam backend.
type User struct {
	ID     string `json:"id" binding:"required"`
	Name   string `json:"name"`
	Phone  string `json:"phone" binding:"required"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// LoginRequest is the payload for student login.
type LoginRequest struct {
	Phone string `json:"phone" binding:"required,min=10,max=15,numeric"`
}

// AdminLoginRequest is the payload for admin login.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	User      *User  `json:"user,omitempty"`
}
