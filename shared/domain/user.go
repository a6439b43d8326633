package domain

import "encoding/json"

type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID ID     `json:"tenantId,omitempty"`
}

// UnmarshalJSON accepts both "id" and "_id"; the login and user-list
// endpoints disagree on the name.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		MongoID ID `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	return nil
}
