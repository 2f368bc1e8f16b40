package model

// AppConfig holds runtime server parameters set via CLI flags.
type AppConfig struct {
	SecureCookies  bool     // Set Secure flag on cookies (disable for local dev)
	AllowedOrigins []string // Origins allowed to call the API (the SPA dev server)
}
