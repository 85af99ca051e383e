package entities

// Related is the resolved value of a relationship.
// Single-valued kinds use Record; collections use Records. When a collection is
// keyed by an index field, Index maps each key to its record and Keys keeps the
// keys in resolution order.
type Related struct {
	Record  *Record
	Records []*Record
	Index   map[string]*Record
	Keys    []string
}

// One wraps a single record. A nil record is the absent value.
func One(rec *Record) Related {
	return Related{Record: rec}
}

// Many wraps an ordered collection
func Many(recs []*Record) Related {
	return Related{Records: recs}
}

// Indexed keys a collection by the value of field. Duplicate keys overwrite
// earlier records; the key keeps its first position.
func Indexed(recs []*Record, field string) Related {
	rel := Related{Index: make(map[string]*Record, len(recs))}
	for _, rec := range recs {
		rel.add(rec, field)
	}
	rel.rebuild()
	return rel
}

// Append returns a copy of the value with recs added at the end
func (r Related) Append(recs []*Record, indexField string) Related {
	if r.Index == nil {
		out := Related{Records: append(append([]*Record(nil), r.Records...), recs...)}
		return out
	}
	out := Related{
		Index: make(map[string]*Record, len(r.Index)+len(recs)),
		Keys:  append([]string(nil), r.Keys...),
	}
	for k, v := range r.Index {
		out.Index[k] = v
	}
	for _, rec := range recs {
		out.add(rec, indexField)
	}
	out.rebuild()
	return out
}

func (r *Related) add(rec *Record, field string) {
	key := KeyString(rec.Get(field))
	if _, exists := r.Index[key]; !exists {
		r.Keys = append(r.Keys, key)
	}
	r.Index[key] = rec
}

func (r *Related) rebuild() {
	r.Records = make([]*Record, 0, len(r.Keys))
	for _, k := range r.Keys {
		r.Records = append(r.Records, r.Index[k])
	}
}

// IsAbsent reports whether there is no related record at all
func (r Related) IsAbsent() bool {
	return r.Record == nil && len(r.Records) == 0
}

// All returns every related record, for single and collection values alike
func (r Related) All() []*Record {
	if r.Record != nil {
		return []*Record{r.Record}
	}
	return r.Records
}
