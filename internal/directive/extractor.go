package directive

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	openTag  = "<action"
	closeTag = "</action>"
)

// Extract splits assistant text into its narrative and the directives
// embedded as
//
//	<action type="tableSelect">{"sessionId": "...", ...}</action>
//
// Well-formed markers are cut out byte-exactly; everything else is left
// untouched. A marker without a type, without a closing tag, or whose body
// is not a JSON object stays in the narrative as ordinary text.
//
// The returned directives carry RawType, Category, Data and Index only;
// ExtractTurn assigns identities.
func Extract(text string) (string, []Directive) {
	if indexFold(text, openTag, 0) < 0 {
		return text, nil
	}

	var (
		b     strings.Builder
		found []Directive
		pos   int // start of text not yet copied
		from  int // where the next marker search begins
	)

	for {
		start := indexFold(text, openTag, from)
		if start < 0 {
			break
		}

		rawType, data, end, ok := parseMarker(text, start)
		if !ok {
			from = start + len(openTag)
			continue
		}

		if len(found) == 0 {
			b.Grow(len(text))
		}
		b.WriteString(text[pos:start])
		found = append(found, Directive{
			Index:    len(found),
			RawType:  rawType,
			Category: Normalize(rawType),
			Data:     data,
			Source:   SourceEmbedded,
		})
		pos, from = end, end
	}

	if len(found) == 0 {
		return text, nil
	}

	b.WriteString(text[pos:])
	return b.String(), found
}

// ExtractTurn extracts the embedded directives of an assistant turn and
// stamps them with turn-scoped identities. User turns carry no directives.
func ExtractTurn(turn ChatTurn) (string, []Directive) {
	if turn.Role != RoleAssistant {
		return turn.Content, nil
	}

	narrative, found := Extract(turn.Content)
	for i := range found {
		found[i].TurnID = turn.ID
		found[i].ID = embeddedID(turn.ID, found[i].Index)
	}
	return narrative, found
}

// FromLegacy converts the action objects attached to a turn into
// directives that flow through the same renderer and dispatcher as
// embedded ones.
func FromLegacy(turn ChatTurn) []Directive {
	if len(turn.LegacyActions) == 0 {
		return nil
	}

	out := make([]Directive, 0, len(turn.LegacyActions))
	for i, a := range turn.LegacyActions {
		data := a.Data
		if data == nil {
			data = map[string]any{}
		}
		out = append(out, Directive{
			ID:       legacyID(turn.ID, i),
			TurnID:   turn.ID,
			Index:    i,
			RawType:  a.Type,
			Category: Normalize(a.Type),
			Data:     data,
			Source:   SourceLegacy,
		})
	}
	return out
}

// parseMarker parses the marker starting at text[start:]. end is the index
// just past its closing tag.
func parseMarker(text string, start int) (rawType string, data map[string]any, end int, ok bool) {
	i := start + len(openTag)
	if i >= len(text) || !isSpace(text[i]) {
		return "", nil, 0, false
	}

	gt := strings.IndexByte(text[i:], '>')
	if gt < 0 {
		return "", nil, 0, false
	}
	gt += i

	attrs, ok := parseAttrs(text[i:gt])
	if !ok {
		return "", nil, 0, false
	}
	rawType = strings.TrimSpace(attrs["type"])
	if rawType == "" {
		return "", nil, 0, false
	}

	closeAt := indexFold(text, closeTag, gt+1)
	if closeAt < 0 {
		return "", nil, 0, false
	}

	data, ok = decodeBody(text[gt+1 : closeAt])
	if !ok {
		return "", nil, 0, false
	}

	return rawType, data, closeAt + len(closeTag), true
}

// parseAttrs reads name="value", name='value' and name=value pairs
func parseAttrs(s string) (map[string]string, bool) {
	attrs := make(map[string]string, 1)
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return attrs, true
		}

		nameStart := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		name := strings.ToLower(s[nameStart:i])
		if name == "" || i >= len(s) || s[i] != '=' {
			return nil, false
		}
		i++ // '='

		if i >= len(s) {
			return nil, false
		}

		var value string
		switch q := s[i]; q {
		case '"', '\'':
			closeQ := strings.IndexByte(s[i+1:], q)
			if closeQ < 0 {
				return nil, false
			}
			value = s[i+1 : i+1+closeQ]
			i += closeQ + 2
		default:
			valStart := i
			for i < len(s) && !isSpace(s[i]) {
				i++
			}
			value = s[valStart:i]
		}
		attrs[name] = value
	}
}

// decodeBody decodes a marker body into a JSON object. Numbers are kept as
// json.Number so correlators round-trip unchanged.
func decodeBody(body string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return map[string]any{}, true
	}
	if trimmed[0] != '{' {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, true
}

// indexFold is an ASCII case-insensitive strings.Index starting at from
func indexFold(s, substr string, from int) int {
	for i := from; i+len(substr) <= len(s); i++ {
		j := strings.IndexByte(s[i:], substr[0])
		if j < 0 {
			return -1
		}
		i += j
		if i+len(substr) > len(s) {
			return -1
		}
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
