package way

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// ID identifies a waystation. way may emit it as a JSON string or number.
type ID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("way: id must be a string or number: %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Mark is a file location with a snippet of surrounding text.
type Mark struct {
	Path    string
	Line    int
	Column  int
	Context string

	extra map[string]json.RawMessage
}

var markFields = []string{"path", "line", "column", "context"}

// UnmarshalJSON decodes the known mark fields and keeps the rest.
func (m *Mark) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Mark
	if err := decodeField(raw, "path", &out.Path); err != nil {
		return err
	}
	if err := decodeField(raw, "line", &out.Line); err != nil {
		return err
	}
	if err := decodeField(raw, "column", &out.Column); err != nil {
		return err
	}
	if err := decodeField(raw, "context", &out.Context); err != nil {
		return err
	}
	out.extra = without(raw, markFields...)
	*m = out
	return nil
}

// MarshalJSON writes the known fields over any preserved ones.
func (m Mark) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+4)
	for k, v := range m.extra {
		out[k] = v
	}
	out["path"] = m.Path
	out["line"] = m.Line
	out["column"] = m.Column
	out["context"] = m.Context
	return json.Marshal(out)
}

// Location renders the mark as path:line:column.
func (m Mark) Location() string {
	return m.Path + ":" + strconv.Itoa(m.Line) + ":" + strconv.Itoa(m.Column)
}

// Waystation is an ordered collection of marks owned by way. Fields wayside
// does not interpret are carried through unchanged.
type Waystation struct {
	ID    ID
	Name  string
	Marks []Mark

	extra map[string]json.RawMessage
	// decoded holds the raw id, name and marks values as way sent them.
	decoded map[string]json.RawMessage
}

var waystationFields = []string{"id", "name", "marks"}

// UnmarshalJSON decodes the known waystation fields and keeps the rest.
func (w *Waystation) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Waystation
	if err := decodeField(raw, "id", &out.ID); err != nil {
		return err
	}
	if err := decodeField(raw, "name", &out.Name); err != nil {
		return err
	}
	if err := decodeField(raw, "marks", &out.Marks); err != nil {
		return err
	}
	for _, k := range waystationFields {
		if v, ok := raw[k]; ok {
			if out.decoded == nil {
				out.decoded = make(map[string]json.RawMessage, len(waystationFields))
			}
			out.decoded[k] = v
		}
	}
	out.extra = without(raw, waystationFields...)
	*w = out
	return nil
}

// MarshalJSON writes the known fields over any preserved ones. A field that
// still holds the value it was decoded from is written back byte for byte,
// and a field that was neither decoded nor set is left out.
func (w Waystation) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(w.extra)+3)
	for k, v := range w.extra {
		out[k] = v
	}

	if v, ok := w.decoded["id"]; ok && sameID(v, w.ID) {
		out["id"] = v
	} else if w.ID != "" || ok {
		out["id"] = w.ID
	}

	if v, ok := w.decoded["name"]; ok && sameName(v, w.Name) {
		out["name"] = v
	} else if w.Name != "" || ok {
		out["name"] = w.Name
	}

	v, ok := w.decoded["marks"]
	switch {
	case len(w.Marks) > 0:
		out["marks"] = w.Marks
	case ok && bytes.Equal(v, []byte("null")):
		out["marks"] = v
	case ok || w.Marks != nil:
		out["marks"] = []Mark{}
	}
	return json.Marshal(out)
}

func sameID(raw json.RawMessage, id ID) bool {
	var got ID
	return got.UnmarshalJSON(raw) == nil && got == id
}

func sameName(raw json.RawMessage, name string) bool {
	if bytes.Equal(raw, []byte("null")) {
		return name == ""
	}
	var got string
	return json.Unmarshal(raw, &got) == nil && got == name
}

// Extra returns a copy of the fields wayside does not interpret.
func (w Waystation) Extra() map[string]json.RawMessage {
	return maps.Clone(w.extra)
}

// IsZero reports whether nothing has been decoded into w.
func (w Waystation) IsZero() bool {
	return w.ID == "" && w.Name == "" && len(w.Marks) == 0 && len(w.extra) == 0
}

// Summary is one entry of the waystation listing.
type Summary struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// ValidationResult is the verdict way reports for a candidate waystation.
// Waystation is set only by ValidateAndUpdate after a successful update.
type ValidationResult struct {
	Success    bool
	Error      json.RawMessage
	Waystation *Waystation

	extra map[string]json.RawMessage
}

var validationFields = []string{"success", "error", "waystation"}

// UnmarshalJSON decodes the verdict and keeps any extra fields.
func (r *ValidationResult) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out ValidationResult
	if err := decodeField(raw, "success", &out.Success); err != nil {
		return err
	}
	if v, ok := raw["error"]; ok && !bytes.Equal(v, []byte("null")) {
		out.Error = append(json.RawMessage(nil), v...)
	}
	if v, ok := raw["waystation"]; ok && !bytes.Equal(v, []byte("null")) {
		var ws Waystation
		if err := json.Unmarshal(v, &ws); err != nil {
			return fmt.Errorf("way: decode waystation: %w", err)
		}
		out.Waystation = &ws
	}
	out.extra = without(raw, validationFields...)
	*r = out
	return nil
}

// MarshalJSON writes the verdict with every preserved field.
func (r ValidationResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.extra)+3)
	for k, v := range r.extra {
		out[k] = v
	}
	out["success"] = r.Success
	if len(r.Error) > 0 {
		out["error"] = r.Error
	}
	if r.Waystation != nil {
		out["waystation"] = r.Waystation
	}
	return json.Marshal(out)
}

func decodeField(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok || bytes.Equal(v, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("way: decode %s: %w", key, err)
	}
	return nil
}

func without(raw map[string]json.RawMessage, keys ...string) map[string]json.RawMessage {
	for _, k := range keys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}
