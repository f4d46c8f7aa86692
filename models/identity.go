package models

type Role string

const (
	RoleCustomer Role = "customer"
	RoleChef     Role = "chef"
	RoleAdmin    Role = "admin"
)

// Identity is the resolved caller of a request.
type Identity struct {
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// ChefID is the chef identifier carried by a chef identity.
func (i Identity) ChefID() string {
	return i.SubjectID
}
