package dom

import "slices"

// MutationType distinguishes mutation records.
type MutationType int

const (
	ChildList MutationType = iota + 1
	Attributes
)

// Mutation describes one change to the document.
type Mutation struct {
	Type          MutationType
	Target        *Element
	AddedNodes    []*Element // ChildList only
	AttributeName string     // Attributes only
	OldValue      string
}

// ObserveOptions selects which mutations an observer receives.
type ObserveOptions struct {
	ChildList bool
	// Subtree extends observation from <body> itself to all its descendants.
	Subtree         bool
	Attributes      bool
	AttributeFilter []string
}

// MutationCallback receives mutation records.
type MutationCallback func([]Mutation)

type observer struct {
	opts ObserveOptions
	cb   MutationCallback
}

// Observe registers cb for mutations under <body> and returns a function
// that stops observation.
func (d *Document) Observe(opts ObserveOptions, cb MutationCallback) func() {
	d.obsMu.Lock()
	id := d.nextObsID
	d.nextObsID++
	d.observers[id] = &observer{opts: opts, cb: cb}
	d.obsMu.Unlock()

	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

func (d *Document) dispatch(m Mutation) {
	d.obsMu.Lock()
	targets := make([]*observer, 0, len(d.observers))
	for _, o := range d.observers {
		targets = append(targets, o)
	}
	d.obsMu.Unlock()

	if len(targets) == 0 {
		return
	}
	body := d.Body()
	inSubtree, isBody := d.position(m.Target, body)
	for _, o := range targets {
		if !o.wants(m) {
			continue
		}
		if isBody || (o.opts.Subtree && inSubtree) {
			o.cb([]Mutation{m})
		}
	}
}

// position reports whether target is under body and whether it is body.
func (d *Document) position(target, body *Element) (bool, bool) {
	if body == nil {
		return false, false
	}
	if target == body {
		return true, true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for n := target.node.Parent; n != nil; n = n.Parent {
		if n == body.node {
			return true, false
		}
	}
	return false, false
}

func (o *observer) wants(m Mutation) bool {
	switch m.Type {
	case ChildList:
		return o.opts.ChildList
	case Attributes:
		if !o.opts.Attributes {
			return false
		}
		return len(o.opts.AttributeFilter) == 0 || slices.Contains(o.opts.AttributeFilter, m.AttributeName)
	default:
		return false
	}
}
