package sheets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one named cell of a record.
type Field struct {
	Name  string
	Value Value
}

// Record is a spreadsheet row. Fields keep the order the sheet returned them in.
type Record struct {
	ID     string
	fields []Field
}

func NewRecord(id string, fields ...Field) Record {
	return Record{ID: id, fields: append([]Field(nil), fields...)}
}

func (r Record) Len() int { return len(r.fields) }

func (r Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

func (r Record) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the named field, or appends it when absent.
func (r *Record) Set(name string, v Value) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Project keeps only the named columns, in the order given. Columns the record
// does not have are skipped.
func (r Record) Project(columns []string) Record {
	out := Record{ID: r.ID, fields: make([]Field, 0, len(columns))}
	for _, name := range columns {
		if v, ok := r.Get(name); ok {
			out.fields = append(out.fields, Field{Name: name, Value: v})
		}
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.ID != "" {
		id, err := json.Marshal(r.ID)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`"id":`)
		buf.Write(id)
		buf.WriteByte(',')
	}
	buf.WriteString(`"fields":{`)
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts both the WPS record shape {"id": ..., "fields": {...}}
// and a flat row object where every key other than id or recordId is a column.
func (r *Record) UnmarshalJSON(data []byte) error {
	members, err := decodeMembers(data)
	if err != nil {
		return err
	}

	var fieldsRaw json.RawMessage
	var id string
	for _, m := range members {
		switch m.key {
		case "fields":
			if trimmed := bytes.TrimSpace(m.raw); len(trimmed) > 0 && trimmed[0] == '{' {
				fieldsRaw = m.raw
			}
		case "id", "recordId":
			if id == "" {
				id = scalarText(m.raw)
			}
		}
	}

	if fieldsRaw == nil {
		columns := make([]member, 0, len(members))
		for _, m := range members {
			if m.key != "id" && m.key != "recordId" {
				columns = append(columns, m)
			}
		}
		fields, err := membersToFields(columns)
		if err != nil {
			return err
		}
		*r = Record{ID: id, fields: fields}
		return nil
	}

	inner, err := decodeMembers(fieldsRaw)
	if err != nil {
		return err
	}
	fields, err := membersToFields(inner)
	if err != nil {
		return err
	}
	*r = Record{ID: id, fields: fields}
	return nil
}

type member struct {
	key string
	raw json.RawMessage
}

// decodeMembers walks a JSON object with a token stream so key order survives.
func decodeMembers(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode record: expected object, got %v", tok)
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode record: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode record field %q: %w", key, err)
		}
		members = append(members, member{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return members, nil
}

func membersToFields(members []member) ([]Field, error) {
	fields := make([]Field, 0, len(members))
	seen := make(map[string]int, len(members))
	for _, m := range members {
		v, err := DecodeValue(m.raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", m.key, err)
		}
		if idx, dup := seen[m.key]; dup {
			fields[idx].Value = v
			continue
		}
		seen[m.key] = len(fields)
		fields = append(fields, Field{Name: m.key, Value: v})
	}
	return fields, nil
}

func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
