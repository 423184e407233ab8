package catalog

import "time"

// Attribute type constants. Stored as-is in the type column; the UI treats
// EMAIL/PHONE/URL/TEXTAREA as display variants of TEXT, but coercion and
// filtering honor the declared type.
const (
	TypeText        = "TEXT"
	TypeTextarea    = "TEXTAREA"
	TypeNumber      = "NUMBER"
	TypeBoolean     = "BOOLEAN"
	TypeDate        = "DATE"
	TypeEmail       = "EMAIL"
	TypePhone       = "PHONE"
	TypeURL         = "URL"
	TypeSelect      = "SELECT"
	TypeMultiSelect = "MULTI_SELECT"
	TypeJSON        = "JSON"
	TypeAttachment  = "ATTACHMENT"
)

var validTypes = map[string]bool{
	TypeText:        true,
	TypeTextarea:    true,
	TypeNumber:      true,
	TypeBoolean:     true,
	TypeDate:        true,
	TypeEmail:       true,
	TypePhone:       true,
	TypeURL:         true,
	TypeSelect:      true,
	TypeMultiSelect: true,
	TypeJSON:        true,
	TypeAttachment:  true,
}

// IsValidType reports whether t is a supported attribute type.
func IsValidType(t string) bool {
	return validTypes[t]
}

// DataModel is a runtime-defined entity type.
type DataModel struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Attribute is a typed field definition owned by exactly one DataModel.
// Identity is the immutable id; the name is a display/lookup alias resolved
// once per query, never baked into stored value rows.
type Attribute struct {
	ID          string     `json:"id"`
	DataModelID string     `json:"data_model_id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Type        string     `json:"type"`
	Order       int        `json:"order"`
	Required    bool       `json:"required"`
	Validation  string     `json:"validation,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the attribute is part of the current schema.
func (a *Attribute) Active() bool {
	return a.DeletedAt == nil
}

// AttributeInput is the payload for creating an attribute.
type AttributeInput struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Order       int    `json:"order"`
	Required    bool   `json:"required"`
	Validation  string `json:"validation"`
}

// RenameResult carries both names so in-flight readers keyed by the old
// name can be re-pointed; the caller decides how long to honor the alias.
type RenameResult struct {
	AttributeID string `json:"attribute_id"`
	OldName     string `json:"old_name"`
	NewName     string `json:"new_name"`
}
