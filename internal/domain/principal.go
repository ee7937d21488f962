package domain

// Principal is the authenticated identity attached to a request.
// Owner-scoped operations receive it explicitly and trust ID as the authorization key.
type Principal struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	IsVerified          bool   `json:"is_verified"`
	IsAcceptingMessages bool   `json:"is_accepting_messages"`
}
