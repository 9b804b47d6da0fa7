package live

import "encoding/xml"

// Element is a generic XML node. Live set documents are deep, attribute
// heavy trees with no fixed schema worth modeling as structs, so both
// generation and template editing work on this one type.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []*Element `xml:",any"`
}

// El creates an element. Attribute key/value pairs alternate.
func El(tag string, kv ...string) *Element {
	e := &Element{XMLName: xml.Name{Local: tag}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.SetAttr(kv[i], kv[i+1])
	}
	return e
}

// ValueEl creates the common `<Tag Value="..."/>` leaf.
func ValueEl(tag, value string) *Element {
	return El(tag, "Value", value)
}

func (e *Element) Tag() string { return e.XMLName.Local }

// Attr returns the named attribute's value, "" if absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// SetAttr adds or replaces an attribute.
func (e *Element) SetAttr(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name.Local == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	return e
}

// Add appends children and returns the receiver for chaining.
func (e *Element) Add(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Child returns the first direct child with the given tag, nil if none.
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag() == tag {
			return c
		}
	}
	return nil
}

// Path walks direct children tag by tag, nil if any hop is missing.
func (e *Element) Path(tags ...string) *Element {
	cur := e
	for _, tag := range tags {
		if cur = cur.Child(tag); cur == nil {
			return nil
		}
	}
	return cur
}

// Find returns the first element with the given tag in document order,
// including the receiver itself.
func (e *Element) Find(tag string) *Element {
	if e.Tag() == tag {
		return e
	}
	for _, c := range e.Children {
		if m := c.Find(tag); m != nil {
			return m
		}
	}
	return nil
}

// Walk visits the receiver and every descendant in document order.
func (e *Element) Walk(fn func(*Element)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// Remove deletes a direct child by identity and reports whether it was found.
func (e *Element) Remove(child *Element) bool {
	for i, c := range e.Children {
		if c == child {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			return true
		}
	}
	return false
}

// InsertAt places a child at the given index, clamped to the child list.
func (e *Element) InsertAt(i int, child *Element) {
	if i < 0 {
		i = 0
	}
	if i > len(e.Children) {
		i = len(e.Children)
	}
	e.Children = append(e.Children, nil)
	copy(e.Children[i+1:], e.Children[i:])
	e.Children[i] = child
}
