package model

// User is the authenticated operator as returned by the remote API.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// DisplayName picks the first non-empty of first name, name and email,
// falling back to the address used to log in.
func (u *User) DisplayName(loginEmail string) string {
	if u == nil {
		return loginEmail
	}
	for _, s := range []string{u.FirstName, u.Name, u.Email} {
		if s != "" {
			return s
		}
	}
	return loginEmail
}
