package auth

// HTTP header and cookie names used for session transport.
const (
	// AuthorizationHeader carries "Bearer <token>".
	AuthorizationHeader = "Authorization"

	// BearerPrefix precedes the token in the Authorization header.
	BearerPrefix = "Bearer "

	// SessionCookieName is the cookie set on sign-in.
	SessionCookieName = "session"

	// Issuer is the iss claim of session tokens.
	Issuer = "truly"
)
