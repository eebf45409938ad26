package canon

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robklg/canon/internal/store"
)

// PatternError reports a pattern-expansion failure naming the offending
// variable.
type PatternError struct {
	Variable string
	Reason   string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern variable {%s}: %s", e.Variable, e.Reason)
}

// expandPattern substitutes {variable} placeholders in pattern using the
// source's identity, its effective facts, and the object's hash (if any).
// Unresolvable variables are a named error. Substituted values have path
// separators and NUL bytes replaced with "_".
func expandPattern(pattern string, src *store.Source, obj *store.Object, facts map[string]string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(pattern) {
		ch := pattern[i]
		if ch != '{' {
			out.WriteByte(ch)
			i++
			continue
		}
		end := strings.IndexByte(pattern[i:], '}')
		if end < 0 {
			return "", &PatternError{Variable: pattern[i:], Reason: "unterminated variable"}
		}
		name := pattern[i+1 : i+end]
		val, err := patternValue(name, src, obj, facts)
		if err != nil {
			return "", err
		}
		out.WriteString(sanitizePatternValue(val))
		i += end + 1
	}
	return out.String(), nil
}

func patternValue(name string, src *store.Source, obj *store.Object, facts map[string]string) (string, error) {
	switch name {
	case "filename":
		return src.Filename, nil
	case "stem":
		return strings.TrimSuffix(src.Filename, filepath.Ext(src.Filename)), nil
	case "ext":
		return src.Ext, nil
	case "id":
		return strconv.FormatInt(src.ID, 10), nil
	case "hash":
		if obj == nil {
			return "", &PatternError{Variable: name, Reason: "source has no linked object"}
		}
		return obj.Hash, nil
	case "hash_short":
		if obj == nil {
			return "", &PatternError{Variable: name, Reason: "source has no linked object"}
		}
		if len(obj.Hash) < 8 {
			return obj.Hash, nil
		}
		return obj.Hash[:8], nil
	case "year", "month", "day", "date":
		t, err := patternDate(src, facts)
		if err != nil {
			return "", &PatternError{Variable: name, Reason: err.Error()}
		}
		switch name {
		case "year":
			return fmt.Sprintf("%04d", t.Year()), nil
		case "month":
			return fmt.Sprintf("%02d", t.Month()), nil
		case "day":
			return fmt.Sprintf("%02d", t.Day()), nil
		default:
			return t.Format("2006-01-02"), nil
		}
	default:
		key := strings.ReplaceAll(name, "_", ".")
		if val, ok := facts[key]; ok {
			return val, nil
		}
		if val, ok := facts[name]; ok {
			return val, nil
		}
		return "", &PatternError{Variable: name, Reason: "no such fact"}
	}
}

// patternDate resolves {year}/{month}/{day}/{date} from
// content.DateTimeOriginal if present, else from the source's mtime.
func patternDate(src *store.Source, facts map[string]string) (time.Time, error) {
	if raw, ok := facts["content.DateTimeOriginal"]; ok {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("content.DateTimeOriginal %q is not a recognized date", raw)
	}
	return time.Unix(src.Mtime, 0).UTC(), nil
}

// sanitizePatternValue replaces path separators and NUL bytes so a fact
// value can never escape its path segment.
func sanitizePatternValue(v string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")
	return r.Replace(v)
}
