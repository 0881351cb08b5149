package user

type User struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"-"`
	Hobbies  []string `json:"hobbies,omitempty"`
}

type RegisterRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Hobbies  []string `json:"hobbies"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
	Name        string `json:"name"`
}

// Profile is the current-user view: identity plus hobby names and the ids of
// every channel (group or direct) the user belongs to.
type Profile struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Hobbies          []string `json:"hobbies"`
	GroupMemberships []int64  `json:"group_memberships"`
}
