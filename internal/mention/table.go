package mention

// Table maps participant names to venue IDs and display names.
// Names are kept in the order they were first added. Not safe for
// concurrent use; each pipeline run owns its own table.
type Table struct {
	ids     map[string]string // name -> id
	names   map[string]string // id -> name
	display map[string]string // name -> display name
	aliases map[string]string // id -> name, rewrite only
	order   []string
}

func NewTable() *Table {
	return &Table{
		ids:     make(map[string]string),
		names:   make(map[string]string),
		display: make(map[string]string),
		aliases: make(map[string]string),
	}
}

// Alias makes ToNames rewrite <@id> to <@name> without recording id as a
// participant.
func (t *Table) Alias(id, name string) {
	if id == "" || name == "" {
		return
	}
	t.aliases[id] = name
}

// Add records a participant. A later Add for the same name updates its
// ID and display name but keeps its original position.
func (t *Table) Add(id, name, display string) {
	if name == "" {
		return
	}
	if _, ok := t.ids[name]; !ok {
		t.order = append(t.order, name)
	}
	if old, ok := t.ids[name]; ok && old != id {
		delete(t.names, old)
	}
	t.ids[name] = id
	if id != "" {
		t.names[id] = name
	}
	if display == "" {
		display = name
	}
	t.display[name] = display
}

// ID returns the venue ID recorded for name.
func (t *Table) ID(name string) (string, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the name recorded for a venue ID.
func (t *Table) Name(id string) (string, bool) {
	n, ok := t.names[id]
	return n, ok
}

// Display returns the display name for name, or name itself when unknown.
func (t *Table) Display(name string) string {
	if d, ok := t.display[name]; ok {
		return d
	}
	return name
}

// Names returns every recorded name in insertion order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

func (t *Table) Len() int { return len(t.order) }

// ToNames rewrites every known <@id> reference in s to <@name>.
// Unknown IDs are left as they are.
func (t *Table) ToNames(s string) string {
	tokens := Parse(s)
	for i, tok := range tokens {
		if tok.Kind != ID {
			continue
		}
		if name, ok := t.names[tok.Value]; ok {
			tokens[i] = Token{Kind: Name, Value: name}
		} else if name, ok := t.aliases[tok.Value]; ok {
			tokens[i] = Token{Kind: Name, Value: name}
		}
	}
	return Join(tokens)
}
