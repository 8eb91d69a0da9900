package model

// Member is a sponsored individual ("socio") as stored in the remote collection.
type Member struct {
	ID       int64  `json:"idsocio"`
	Name     string `json:"nombre"`
	IDNumber string `json:"cedula"`
	Address  string `json:"direccion"`
	Phone    string `json:"telefono"`
	Founder  string `json:"fundador"`
	Complete string `json:"completo"`
}

// MemberFields is the payload for creating or patching a member.
// Empty fields are left out so a patch only touches what it carries.
type MemberFields struct {
	Name     string `json:"nombre,omitempty"`
	IDNumber string `json:"cedula,omitempty"`
	Address  string `json:"direccion,omitempty"`
	Phone    string `json:"telefono,omitempty"`
	Founder  string `json:"fundador,omitempty"`
	Complete string `json:"completo,omitempty"`
}

// Fields returns the editable fields of m.
func (m Member) Fields() MemberFields {
	return MemberFields{
		Name:     m.Name,
		IDNumber: m.IDNumber,
		Address:  m.Address,
		Phone:    m.Phone,
		Founder:  m.Founder,
		Complete: m.Complete,
	}
}

// RequiredWireFields lists the keys every record of the collection must carry.
var RequiredWireFields = []string{"idsocio", "nombre", "cedula", "direccion", "telefono", "fundador", "completo"}
