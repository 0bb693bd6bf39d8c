package parser

// Field names one of the numeric counters carried by an excerpt.
type Field int

const (
	Chapters Field = iota
	Subscribers
	Views
)

var fieldStems = [...]string{
	Chapters:    "chapter",
	Subscribers: "subscriber",
	Views:       "view",
}

// Fields lists every counter in binding order.
var Fields = []Field{Chapters, Subscribers, Views}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldStems) {
		return "unknown"
	}
	return fieldStems[f] + "s"
}

// fieldForLabel maps a lower-cased label to its field; singular and plural forms both match.
func fieldForLabel(label string) (Field, bool) {
	for _, f := range Fields {
		stem := fieldStems[f]
		if label == stem || label == stem+"s" {
			return f, true
		}
	}
	return 0, false
}

// Counts is a partial set of counters. A nil entry is unresolved.
type Counts struct {
	Chapters    *int
	Subscribers *int
	Views       *int
}

// Get returns the value bound to f and whether it is resolved.
func (c Counts) Get(f Field) (int, bool) {
	p := c.slot(f)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Has reports whether f is resolved.
func (c Counts) Has(f Field) bool {
	_, ok := c.Get(f)
	return ok
}

// With returns a copy of c with f bound to v.
func (c Counts) With(f Field, v int) Counts {
	if p := c.slot(f); p != nil {
		*p = &v
	}
	return c
}

// Merge fills fields unresolved in c from other. Resolved fields are never overwritten.
func (c Counts) Merge(other Counts) Counts {
	for _, f := range Fields {
		if c.Has(f) {
			continue
		}
		if v, ok := other.Get(f); ok {
			c = c.With(f, v)
		}
	}
	return c
}

// Complete reports whether every field is resolved.
func (c Counts) Complete() bool {
	for _, f := range Fields {
		if !c.Has(f) {
			return false
		}
	}
	return true
}

// OrZero returns the value of f, or 0 when unresolved.
func (c Counts) OrZero(f Field) int {
	v, _ := c.Get(f)
	return v
}

func (c *Counts) slot(f Field) **int {
	switch f {
	case Chapters:
		return &c.Chapters
	case Subscribers:
		return &c.Subscribers
	case Views:
		return &c.Views
	}
	return nil
}
