package models

// DefaultPageSize is the page size applied when a query names none.
const DefaultPageSize = 200

// Page selects one window of an ordered index. Pages count from zero;
// the window covers entries [Start*Size, Start*Size+Size) of the
// index's insertion order. A page past the end is simply empty.
type Page struct {
	Start uint32
	Size  uint32
}

// NewPage applies the query defaults: page zero, DefaultPageSize
// entries. Nil pointers mirror omitted JSON fields.
func NewPage(start, size *uint32) Page {
	p := Page{Start: 0, Size: DefaultPageSize}
	if start != nil {
		p.Start = *start
	}
	if size != nil {
		p.Size = *size
	}
	return p
}

// Offset is the number of entries skipped before the window.
func (p Page) Offset() int {
	return int(p.Start) * int(p.Size)
}

// Limit is the maximum number of entries in the window.
func (p Page) Limit() int {
	return int(p.Size)
}
