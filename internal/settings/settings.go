// Package settings holds the knowledge-base settings and validates them
// against their declared kinds.
package settings

import (
	"path/filepath"
	"sort"

	"github.com/starford/roamorg/internal/capture"
)

// Kind is the declared type of a setting.
type Kind string

// Setting kinds.
const (
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
	KindString    Kind = "string"
	KindBoolean   Kind = "boolean"
	KindList      Kind = "list"
)

// Setting is one named setting as seen by the validator.
type Setting struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Value any    `json:"value"`
}

// Move configures where relocated entries and their files end up.
type Move struct {
	Directory    string `yaml:"directory"`
	File         string `yaml:"file"`
	SourceTag    string `yaml:"source_tag"`
	TargetTag    string `yaml:"target_tag"`
	IDNamedDirs  bool   `yaml:"id_named_dirs"`
	IDNamedFiles bool   `yaml:"id_named_files"`
}

// Roam holds the knowledge-base settings. Relative paths resolve against
// Directory.
type Roam struct {
	Directory    string             `yaml:"directory"`
	FleetingDir  string             `yaml:"fleeting_dir"`
	PermanentDir string             `yaml:"permanent_dir"`
	MOCDir       string             `yaml:"moc_dir"`
	TopIndexFile string             `yaml:"top_index_file"`
	MOCs         map[string]string  `yaml:"mocs"`
	Move         Move               `yaml:"move"`
	Templates    []capture.Template `yaml:"templates"`
}

// NewDefault returns the settings used when the config file leaves the roam
// section out.
func NewDefault() Roam {
	return Roam{
		Directory:    "./roam",
		FleetingDir:  "fleeting",
		PermanentDir: "permanent",
		MOCDir:       "mocs",
		TopIndexFile: "index.org",
		MOCs:         map[string]string{},
		Move: Move{
			Directory:    "permanent",
			File:         "mocs/permanent.org",
			SourceTag:    "fleeting",
			TargetTag:    "permanent",
			IDNamedDirs:  true,
			IDNamedFiles: false,
		},
	}
}

// Root returns the absolute root directory.
func (r Roam) Root() string {
	abs, err := filepath.Abs(r.Directory)
	if err != nil {
		return filepath.Clean(r.Directory)
	}
	return abs
}

// Resolve turns p into an absolute path, relative paths being taken from
// the root. Empty stays empty.
func (r Roam) Resolve(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.Root(), p)
}

// MOCTags returns the tags of the tag to anchor table, sorted.
func (r Roam) MOCTags() []string {
	tags := make([]string, 0, len(r.MOCs))
	for t := range r.MOCs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Settings lists every setting with its kind. Path settings carry their
// resolved absolute value.
func (r Roam) Settings() []Setting {
	return []Setting{
		{Name: "directory", Kind: KindDirectory, Value: r.Resolve(r.Directory)},
		{Name: "fleeting_dir", Kind: KindDirectory, Value: r.Resolve(r.FleetingDir)},
		{Name: "permanent_dir", Kind: KindDirectory, Value: r.Resolve(r.PermanentDir)},
		{Name: "moc_dir", Kind: KindDirectory, Value: r.Resolve(r.MOCDir)},
		{Name: "top_index_file", Kind: KindFile, Value: r.Resolve(r.TopIndexFile)},
		{Name: "mocs", Kind: KindList, Value: r.MOCs},
		{Name: "move.directory", Kind: KindDirectory, Value: r.Resolve(r.Move.Directory)},
		{Name: "move.file", Kind: KindFile, Value: r.Resolve(r.Move.File)},
		{Name: "move.source_tag", Kind: KindString, Value: r.Move.SourceTag},
		{Name: "move.target_tag", Kind: KindString, Value: r.Move.TargetTag},
		{Name: "move.id_named_dirs", Kind: KindBoolean, Value: r.Move.IDNamedDirs},
		{Name: "move.id_named_files", Kind: KindBoolean, Value: r.Move.IDNamedFiles},
		{Name: "templates", Kind: KindList, Value: r.Templates},
	}
}

// Directories returns the directory settings that mkdirs creates, in order.
func (r Roam) Directories() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range r.Settings() {
		if s.Kind != KindDirectory {
			continue
		}
		p, _ := s.Value.(string)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Check validates the settings of r against r's own root.
func (r Roam) Check() (Report, error) {
	return Validate(r.Root(), r.Settings())
}
