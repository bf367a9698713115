// internal/mandate/mandate.go
package mandate

// Type is the kind of agentic action being proposed.
type Type string

const (
	TypeIntent  Type = "intent"
	TypeCart    Type = "cart"
	TypePayment Type = "payment"
)

// Status is a mandate's position in its lifecycle. Status only moves forward:
// pending_approval -> approved -> executed, or pending_approval -> declined.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusDeclined        Status = "declined"
	StatusExecuted        Status = "executed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusDeclined
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPendingApproval:
		return next == StatusApproved || next == StatusDeclined
	case StatusApproved:
		return next == StatusExecuted
	default:
		return false
	}
}

// Mandate is a proposed agentic action requiring explicit user approval
// before execution. ID is immutable once assigned by the server; Data is set
// at creation and never rewritten client-side.
type Mandate struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Status    Status                 `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
	UpdatedAt string                 `json:"updated_at,omitempty"`
}

// IntentData is the apply_card payload carried in Mandate.Data. Unknown
// intents keep the raw map; only apply_card is decoded into this shape.
type IntentData struct {
	Intent      string `json:"intent"`
	ProductSlug string `json:"product_slug"`
	ProductName string `json:"product_name,omitempty"`
	Issuer      string `json:"issuer,omitempty"`
}

// IntentApplyCard is the only intent the workflow branches on; anything else
// is treated as opaque.
const IntentApplyCard = "apply_card"

// ProductSlug extracts the product slug from the data payload, if any.
func (m *Mandate) ProductSlug() string {
	return stringField(m.Data, "product_slug")
}

// ProductName extracts the display name from the data payload, if any.
func (m *Mandate) ProductName() string {
	return stringField(m.Data, "product_name")
}

// Issuer extracts the issuer from the data payload, if any.
func (m *Mandate) Issuer() string {
	return stringField(m.Data, "issuer")
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// Merge folds a partial server response into a previously known mandate:
// fields present on the response win, absent fields fall back to the prior
// value. Keeps a terse execute response from erasing known attributes.
func Merge(prev, next *Mandate) *Mandate {
	if prev == nil {
		return next
	}
	if next == nil {
		return prev
	}

	out := *prev
	if next.ID != "" {
		out.ID = next.ID
	}
	if next.Type != "" {
		out.Type = next.Type
	}
	if next.Status != "" {
		out.Status = next.Status
	}
	if next.Data != nil {
		out.Data = next.Data
	}
	if next.CreatedAt != "" {
		out.CreatedAt = next.CreatedAt
	}
	if next.UpdatedAt != "" {
		out.UpdatedAt = next.UpdatedAt
	}
	return &out
}

// Attachment is a mandate plus the client-only display/matching context it
// was proposed with. Context is never persisted server-side.
type Attachment struct {
	Mandate *Mandate `json:"mandate"`
	Context Context  `json:"context"`
}

// Context annotates an attachment for display and reconciliation matching.
type Context struct {
	ProductName string `json:"productName"`
	Issuer      string `json:"issuer"`
	Slug        string `json:"slug"`
}

// Result is the outcome payload of executing a mandate.
type Result struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Detail    string `json:"result,omitempty"`
}
