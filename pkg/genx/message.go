package genx

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Role string

func (r Role) String() string {
	return string(r)
}

type Message struct {
	Role Role
	Name string
	Text string
}
