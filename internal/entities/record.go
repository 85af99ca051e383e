package entities

import "sort"

// Persistable is the capability a value must have to be assigned to a relationship.
// *Record satisfies it, and so does any type embedding *Record.
type Persistable interface {
	Entity() *Record
}

// Record is an instance of a class: its field values, dirty state, field-change
// hooks and the cache of resolved relationships.
// A Record is owned by a single request and is not safe for concurrent use.
type Record struct {
	class   *Class
	fields  map[string]interface{}
	dirty   map[string]bool
	isNew   bool
	hooks   map[string]map[string]func()
	related map[string]Related
}

// NewRecord creates a phantom record that has not been persisted yet
func NewRecord(class *Class) *Record {
	r := newRecord(class)
	r.isNew = true
	return r
}

// LoadRecord creates a persisted record from stored field values
func LoadRecord(class *Class, fields map[string]interface{}) *Record {
	r := newRecord(class)
	for k, v := range fields {
		r.fields[k] = v
	}
	return r
}

func newRecord(class *Class) *Record {
	return &Record{
		class:   class,
		fields:  make(map[string]interface{}),
		dirty:   make(map[string]bool),
		hooks:   make(map[string]map[string]func()),
		related: make(map[string]Related),
	}
}

// Entity implements Persistable
func (r *Record) Entity() *Record {
	return r
}

// Class returns the class of the record
func (r *Record) Class() *Class {
	return r.class
}

// ClassName returns the class name of the record
func (r *Record) ClassName() string {
	return r.class.Name
}

// ID returns the primary key value, nil for phantoms
func (r *Record) ID() interface{} {
	return r.fields[PrimaryKey]
}

// Get returns a field value, nil when unset
func (r *Record) Get(field string) interface{} {
	return r.fields[field]
}

// Lookup returns a field value and whether it has been set
func (r *Record) Lookup(field string) (interface{}, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Set assigns a field value. When the value changes, the field is marked dirty
// and the hooks registered for it run.
func (r *Record) Set(field string, value interface{}) {
	if ValuesEqual(r.fields[field], value) {
		return
	}
	r.fields[field] = value
	r.dirty[field] = true

	// Hooks may register further hooks, so iterate a snapshot
	hooks := make([]func(), 0, len(r.hooks[field]))
	for _, key := range sortedKeys(r.hooks[field]) {
		hooks = append(hooks, r.hooks[field][key])
	}
	for _, hook := range hooks {
		hook()
	}
}

// AssignID sets the primary key after an insert. It neither marks the record
// dirty nor runs hooks.
func (r *Record) AssignID(id interface{}) {
	r.fields[PrimaryKey] = id
}

// Fields returns a copy of all field values
func (r *Record) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// IsNew reports whether the record is a phantom
func (r *Record) IsNew() bool {
	return r.isNew
}

// IsDirty reports whether the record has unsaved changes
func (r *Record) IsDirty() bool {
	return len(r.dirty) > 0
}

// DirtyFields returns the names of changed fields in sorted order
func (r *Record) DirtyFields() []string {
	fields := make([]string, 0, len(r.dirty))
	for _, name := range sortedKeys(r.dirty) {
		if name != "" {
			fields = append(fields, name)
		}
	}
	return fields
}

// MarkDirty flags the record as changed even when no field changed,
// e.g. after a relationship assignment.
func (r *Record) MarkDirty() {
	r.dirty[""] = true
}

// MarkSaved clears the phantom flag and the dirty state
func (r *Record) MarkSaved() {
	r.isNew = false
	r.dirty = make(map[string]bool)
}

// OnFieldChange registers a hook run whenever field changes.
// Registering again under the same key replaces the previous hook.
func (r *Record) OnFieldChange(field, key string, hook func()) {
	if r.hooks[field] == nil {
		r.hooks[field] = make(map[string]func())
	}
	r.hooks[field][key] = hook
}

// Cached returns the cached value of a relationship
func (r *Record) Cached(name string) (Related, bool) {
	v, ok := r.related[name]
	return v, ok
}

// CacheRelated stores the resolved or assigned value of a relationship
func (r *Record) CacheRelated(name string, value Related) {
	r.related[name] = value
}

// Invalidate drops the cached value of a relationship
func (r *Record) Invalidate(name string) {
	delete(r.related, name)
}

// CachedNames returns the names of relationships with a cached value, sorted
func (r *Record) CachedNames() []string {
	return sortedKeys(r.related)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
