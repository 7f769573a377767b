package crm

import "strings"

// Contact is the subset of a CRM contact record the overlays show. Any field
// may be missing from the response.
type Contact struct {
	ID        string   `json:"id,omitempty"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone,omitempty"`
	Tags      []string `json:"tags"`
}

// SearchResponse is the body of GET /contacts/search.
type SearchResponse struct {
	Contacts []Contact `json:"contacts"`
}

func (c *Contact) FullName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Contact) TagList() string {
	if c == nil {
		return ""
	}
	return strings.Join(c.Tags, ", ")
}
