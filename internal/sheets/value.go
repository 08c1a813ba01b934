package sheets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindImage
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindImage:
		return "image"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ImageRef points at an image stored in a cell. URL is often empty until it
// has been resolved through the image lookup action.
type ImageRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Value is a single cell value. The zero Value is null.
type Value struct {
	kind Kind
	str  string // text for strings, literal for numbers
	b    bool
	img  *ImageRef
	list []Value
}

// dispImgPattern matches the formula WPS writes into cells holding embedded images.
var dispImgPattern = regexp.MustCompile(`^=DISPIMG\(\s*"([^"]+)"\s*,\s*\d+\s*\)$`)

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

// Number keeps the literal as received so large integers and decimals are not
// reformatted on the way back out.
func Number(n json.Number) Value { return Value{kind: KindNumber, str: n.String()} }

func Float(f float64) Value {
	return Value{kind: KindNumber, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Image(ref ImageRef) Value { return Value{kind: KindImage, img: &ref} }

func List(items ...Value) Value { return Value{kind: KindList, list: items} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the text of a string value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Float returns the numeric value of a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v Value) BoolValue() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) Image() (ImageRef, bool) {
	if v.kind != KindImage || v.img == nil {
		return ImageRef{}, false
	}
	return *v.img, true
}

func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out
}

// WithImageURL returns a copy of an image value with its URL set. Other kinds
// are returned unchanged.
func (v Value) WithImageURL(url string) Value {
	if v.kind != KindImage || v.img == nil {
		return v
	}
	ref := *v.img
	ref.URL = url
	return Image(ref)
}

// Text renders the value the way a spreadsheet cell would display it.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindImage:
		if v.img == nil {
			return ""
		}
		if v.img.Name != "" {
			return v.img.Name
		}
		return v.img.ID
	case KindList:
		parts := make([]string, 0, len(v.list))
		for _, item := range v.list {
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.str), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindImage:
		return json.Marshal(struct {
			Type string `json:"type"`
			ImageRef
		}{Type: "image", ImageRef: *v.img})
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, fmt.Errorf("cannot marshal value of %s", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeValue(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// DecodeValue converts one raw JSON cell into a Value. Objects that describe an
// attachment become images; any other object is kept as its compact JSON text.
func DecodeValue(raw []byte) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Null(), nil
	}

	switch raw[0] {
	case 'n':
		if string(raw) != "null" {
			return Value{}, fmt.Errorf("invalid cell value %q", raw)
		}
		return Null(), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("invalid cell value: %w", err)
		}
		return Bool(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("invalid cell value: %w", err)
		}
		if m := dispImgPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
			return Image(ImageRef{ID: m[1]}), nil
		}
		return String(s), nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Value{}, fmt.Errorf("invalid cell value: %w", err)
		}
		list := make([]Value, 0, len(items))
		for _, item := range items {
			decoded, err := DecodeValue(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, decoded)
		}
		return List(list...), nil
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, fmt.Errorf("invalid cell value: %w", err)
		}
		if ref, ok := imageFromObject(obj); ok {
			return Image(ref), nil
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Value{}, fmt.Errorf("invalid cell value: %w", err)
		}
		return String(buf.String()), nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, fmt.Errorf("invalid cell value: %w", err)
		}
		return Number(n), nil
	}
}

var imageIDKeys = []string{"imgId", "fileId", "uploadId", "attachmentId"}

func imageFromObject(obj map[string]any) (ImageRef, bool) {
	var ref ImageRef
	for _, key := range imageIDKeys {
		if s, ok := obj[key].(string); ok && s != "" {
			ref.ID = s
			break
		}
	}
	for _, key := range []string{"name", "fileName"} {
		if s, ok := obj[key].(string); ok && s != "" {
			ref.Name = s
			break
		}
	}
	for _, key := range []string{"url", "link", "imgUrl"} {
		if s, ok := obj[key].(string); ok && s != "" {
			ref.URL = s
			break
		}
	}

	typ, _ := obj["type"].(string)
	isImage := ref.ID != "" || strings.Contains(strings.ToLower(typ), "image")
	if !isImage && ref.URL != "" && looksLikeImageName(ref.Name) {
		isImage = true
	}
	return ref, isImage
}

func looksLikeImageName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
