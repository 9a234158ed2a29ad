package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/roamorg/internal/apperr"
)

// ReportItem is the validation outcome of one setting. Exists is set for
// directory and file settings, InsideRoot for directory settings only.
type ReportItem struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Value      any      `json:"value"`
	KindOK     bool     `json:"kind_ok"`
	Exists     *bool    `json:"exists,omitempty"`
	InsideRoot *bool    `json:"inside_root,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// OK reports whether the setting passed every check.
func (i ReportItem) OK() bool { return len(i.Errors) == 0 }

// Report lists every setting, failed or not.
type Report struct {
	Root  string       `json:"root"`
	OK    bool         `json:"ok"`
	Items []ReportItem `json:"items"`
}

// Failed returns the items that did not pass.
func (r Report) Failed() []ReportItem {
	var out []ReportItem
	for _, it := range r.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// String renders the report for humans.
func (r Report) String() string {
	var sb strings.Builder
	if r.OK {
		fmt.Fprintf(&sb, "Configuration is valid (root %s).\n", r.Root)
	} else {
		fmt.Fprintf(&sb, "Configuration is invalid: %d of %d settings failed (root %s).\n",
			len(r.Failed()), len(r.Items), r.Root)
	}
	for _, it := range r.Items {
		status := "ok  "
		if !it.OK() {
			status = "FAIL"
		}
		fmt.Fprintf(&sb, "  %s %s (%s) = %v", status, it.Name, it.Kind, it.Value)
		var checks []string
		if it.Exists != nil {
			checks = append(checks, "exists: "+yesNo(*it.Exists))
		}
		if it.InsideRoot != nil {
			checks = append(checks, "inside root: "+yesNo(*it.InsideRoot))
		}
		if len(checks) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(checks, ", "))
		}
		if len(it.Errors) > 0 {
			fmt.Fprintf(&sb, ": %s", strings.Join(it.Errors, "; "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Validate checks every setting against the predicate of its kind, and path
// settings against the disk and root. All settings are checked even after a
// failure. An unknown kind is a configuration error, not a report item.
func Validate(root string, settings []Setting) (Report, error) {
	root = filepath.Clean(root)
	rep := Report{Root: root, OK: true, Items: make([]ReportItem, 0, len(settings))}

	for _, s := range settings {
		rules, err := kindRules(s.Kind)
		if err != nil {
			return Report{}, fmt.Errorf("settings: %s: %w", s.Name, err)
		}
		item := ReportItem{Name: s.Name, Kind: s.Kind, Value: s.Value}

		if err := validation.Validate(s.Value, rules...); err != nil {
			item.Errors = append(item.Errors, err.Error())
		} else {
			item.KindOK = true
		}

		if s.Kind == KindDirectory || s.Kind == KindFile {
			path, _ := s.Value.(string)
			exists := path != "" && existsAs(path, s.Kind == KindDirectory)
			item.Exists = &exists
			if !exists {
				item.Errors = append(item.Errors, "does not exist")
			}
		}
		if s.Kind == KindDirectory {
			path, _ := s.Value.(string)
			inside := path != "" && IsInside(root, path)
			item.InsideRoot = &inside
			if !inside {
				item.Errors = append(item.Errors, "not inside root")
			}
		}

		if !item.OK() {
			rep.OK = false
		}
		rep.Items = append(rep.Items, item)
	}
	return rep, nil
}

// IsInside reports whether path is root or lies below it.
func IsInside(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

func kindRules(k Kind) ([]validation.Rule, error) {
	switch k {
	case KindDirectory, KindFile:
		return []validation.Rule{validation.By(isString), validation.Required.Error("is empty")}, nil
	case KindString:
		return []validation.Rule{validation.By(isString)}, nil
	case KindBoolean:
		return []validation.Rule{validation.By(isBool)}, nil
	case KindList:
		return []validation.Rule{validation.By(isList)}, nil
	default:
		return nil, fmt.Errorf("kind %q: %w", k, apperr.ErrUnknownKind)
	}
}

func isString(v any) error {
	if _, ok := v.(string); !ok {
		return errors.New("must be a string")
	}
	return nil
}

func isBool(v any) error {
	if _, ok := v.(bool); !ok {
		return errors.New("must be a boolean")
	}
	return nil
}

func isList(v any) error {
	if v == nil {
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return nil
	}
	return errors.New("must be a list")
}

func existsAs(path string, dir bool) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir() == dir
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
