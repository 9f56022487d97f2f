package domain

// EntityKind identifies the type of a context-eligible reference entity.
type EntityKind string

const (
	KindClass      EntityKind = "class"
	KindAssignment EntityKind = "assignment"
	KindPDF        EntityKind = "pdf"
	KindNote       EntityKind = "note"
)

// EntityKinds lists every kind in a stable order.
func EntityKinds() []EntityKind {
	return []EntityKind{KindClass, KindAssignment, KindPDF, KindNote}
}

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindClass, KindAssignment, KindPDF, KindNote:
		return true
	}
	return false
}

// Entity is a context-eligible reference entity as listed by the backend.
// Only the fields needed for display resolution are carried.
type Entity struct {
	ID    string     `json:"id"`
	Kind  EntityKind `json:"kind"`
	Label string     `json:"label"`
	Color string     `json:"color,omitempty"`
}

// ContextSelection is the set of entity ids, by kind, attached to a
// conversation. Ids are kept in the order the server returned them.
type ContextSelection struct {
	ClassIDs      []string `json:"class_ids"`
	AssignmentIDs []string `json:"assignment_ids"`
	PDFIDs        []string `json:"pdf_ids"`
	NoteIDs       []string `json:"note_ids"`
}

// IDs returns the id set for one kind. Unknown kinds yield nil.
func (s ContextSelection) IDs(kind EntityKind) []string {
	switch kind {
	case KindClass:
		return s.ClassIDs
	case KindAssignment:
		return s.AssignmentIDs
	case KindPDF:
		return s.PDFIDs
	case KindNote:
		return s.NoteIDs
	}
	return nil
}

// SetIDs replaces the id set for one kind.
func (s *ContextSelection) SetIDs(kind EntityKind, ids []string) {
	switch kind {
	case KindClass:
		s.ClassIDs = ids
	case KindAssignment:
		s.AssignmentIDs = ids
	case KindPDF:
		s.PDFIDs = ids
	case KindNote:
		s.NoteIDs = ids
	}
}

// Contains reports whether id is selected under kind.
func (s ContextSelection) Contains(kind EntityKind, id string) bool {
	for _, v := range s.IDs(kind) {
		if v == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the selection.
func (s ContextSelection) Clone() ContextSelection {
	cp := ContextSelection{}
	for _, kind := range EntityKinds() {
		ids := s.IDs(kind)
		if ids == nil {
			continue
		}
		dup := make([]string, len(ids))
		copy(dup, ids)
		cp.SetIDs(kind, dup)
	}
	return cp
}

// Count returns the total number of selected ids across all kinds.
func (s ContextSelection) Count() int {
	n := 0
	for _, kind := range EntityKinds() {
		n += len(s.IDs(kind))
	}
	return n
}

// ContextPatch is a partial context update. A nil field leaves that kind
// untouched on the server; a non-nil field replaces the whole set for that
// kind. This mirrors the backend's PATCH semantics.
type ContextPatch struct {
	ClassIDs      *[]string
	AssignmentIDs *[]string
	PDFIDs        *[]string
	NoteIDs       *[]string
}

// PatchForKind builds a patch that replaces only the given kind's id set.
func PatchForKind(kind EntityKind, ids []string) ContextPatch {
	var p ContextPatch
	switch kind {
	case KindClass:
		p.ClassIDs = &ids
	case KindAssignment:
		p.AssignmentIDs = &ids
	case KindPDF:
		p.PDFIDs = &ids
	case KindNote:
		p.NoteIDs = &ids
	}
	return p
}

// ContextChip is the display-ready form of one selected entity.
// Stale is set when the entity no longer exists in the reference catalog;
// the label then falls back to the kind name.
type ContextChip struct {
	Kind  EntityKind `json:"kind"`
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Color string     `json:"color,omitempty"`
	Stale bool       `json:"stale,omitempty"`
}
