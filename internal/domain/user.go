package domain

// User carries profile data only. Password hashes are stored in a separate
// table keyed by user id so credential material never rides along with
// profile lookups.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Role        string
	Active      bool
	CreatedAt   string
}
