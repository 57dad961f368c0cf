package authapi

import "time"

type loginRequest struct {
	Username string `json:"username" validate:"max=128"`
	Password string `json:"password" validate:"max=1024"`
	TOTPCode string `json:"totp_code,omitempty" validate:"max=16"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"max=512"`
}

type signupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=1024"`
	NewPassword     string `json:"new_password" validate:"required,max=1024"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=256"`
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

type twoFactorEnableRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

type identityResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email,omitempty"`
	Roles            []string  `json:"roles"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	Identity identityResponse `json:"identity"`
	Session  sessionResponse  `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	Identity identityResponse `json:"identity"`
}

type logoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

type twoFactorSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

type sessionInfo struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

type sessionsResponse struct {
	Sessions []sessionInfo `json:"sessions"`
}
