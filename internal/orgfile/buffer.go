// Package orgfile reads and edits org files: headlines, property drawers,
// the #+filetags: line, and the id/cite links the node index is derived from.
package orgfile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/roamorg/internal/apperr"
)

const fileTagsMarker = "#+filetags:"

var (
	headlineRe = regexp.MustCompile(`^(\*+)\s+(.*?)(?:\s+(:[\w@#%:]+:))?\s*$`)
	planningRe = regexp.MustCompile(`^\s*(SCHEDULED|DEADLINE|CLOSED):`)
	propLineRe = regexp.MustCompile(`^\s*:([^:\s]+):(?:\s+(.*?))?\s*$`)
)

// Entry is a headline subtree, or the whole file when Level is 0.
// Start and End are 0-based line indexes; End is exclusive.
type Entry struct {
	Start int
	End   int
	Level int
	Title string
	Tags  []string
}

// Buffer is an in-memory, line-oriented copy of an org file.
type Buffer struct {
	lines []string
}

// NewBuffer splits data into lines. A trailing newline does not produce an
// empty last line.
func NewBuffer(data []byte) *Buffer {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return &Buffer{}
	}
	return &Buffer{lines: strings.Split(s, "\n")}
}

// Bytes renders the buffer with a trailing newline.
func (b *Buffer) Bytes() []byte {
	if len(b.lines) == 0 {
		return nil
	}
	return []byte(strings.Join(b.lines, "\n") + "\n")
}

// Len returns the number of lines.
func (b *Buffer) Len() int { return len(b.lines) }

// Line returns line i (0-based).
func (b *Buffer) Line(i int) string { return b.lines[i] }

// headline parses line i as a headline.
func (b *Buffer) headline(i int) (level int, title string, tags []string, ok bool) {
	m := headlineRe.FindStringSubmatch(b.lines[i])
	if m == nil {
		return 0, "", nil, false
	}
	return len(m[1]), strings.TrimSpace(m[2]), splitTags(m[3]), true
}

// subtreeEnd returns the index of the first headline after start whose level
// is at most level, or the line count.
func (b *Buffer) subtreeEnd(start, level int) int {
	for i := start + 1; i < len(b.lines); i++ {
		if l, _, _, ok := b.headline(i); ok && l <= level {
			return i
		}
	}
	return len(b.lines)
}

func (b *Buffer) entryFrom(start int) Entry {
	level, title, tags, _ := b.headline(start)
	return Entry{
		Start: start,
		End:   b.subtreeEnd(start, level),
		Level: level,
		Title: title,
		Tags:  tags,
	}
}

// EntryAt returns the headline subtree containing the 1-based line.
func (b *Buffer) EntryAt(line int) (Entry, error) {
	if line < 1 || line > len(b.lines) {
		return Entry{}, fmt.Errorf("line %d: %w", line, apperr.ErrNotAHeadline)
	}
	for i := line - 1; i >= 0; i-- {
		if _, _, _, ok := b.headline(i); ok {
			return b.entryFrom(i), nil
		}
	}
	return Entry{}, fmt.Errorf("line %d: %w", line, apperr.ErrNotAHeadline)
}

// FileEntry returns the level 0 entry spanning the whole buffer.
func (b *Buffer) FileEntry() Entry {
	return Entry{Start: 0, End: len(b.lines), Level: 0}
}

// Cut removes the entry with all of its nested content and returns the
// removed text, newline terminated.
func (b *Buffer) Cut(e Entry) string {
	removed := append([]string(nil), b.lines[e.Start:e.End]...)
	b.lines = append(b.lines[:e.Start], b.lines[e.End:]...)
	if len(removed) == 0 {
		return ""
	}
	return strings.Join(removed, "\n") + "\n"
}

// Append adds text at the end of the buffer.
func (b *Buffer) Append(text string) {
	b.Insert(len(b.lines), text)
}

// Insert adds text before line index at.
func (b *Buffer) Insert(at int, text string) {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return
	}
	added := strings.Split(text, "\n")
	tail := append([]string(nil), b.lines[at:]...)
	b.lines = append(append(b.lines[:at], added...), tail...)
}

// FileTags returns the tokens of the tag declaration line.
func (b *Buffer) FileTags() ([]string, bool) {
	i := b.fileTagsLine()
	if i < 0 {
		return nil, false
	}
	return splitTags(b.lines[i][len(fileTagsMarker):]), true
}

func (b *Buffer) fileTagsLine() int {
	for i, line := range b.lines {
		if len(line) >= len(fileTagsMarker) && strings.EqualFold(line[:len(fileTagsMarker)], fileTagsMarker) {
			return i
		}
		if _, _, _, ok := b.headline(i); ok {
			break
		}
	}
	return -1
}

// ReplaceFileTag swaps source for target on the tag declaration line. Other
// tags keep their position. found is false when the file has no such line.
func (b *Buffer) ReplaceFileTag(source, target string) (changed, found bool) {
	i := b.fileTagsLine()
	if i < 0 {
		return false, false
	}
	line := b.lines[i]
	marker := line[:len(fileTagsMarker)]
	tags := ReplaceTag(splitTags(line[len(fileTagsMarker):]), source, target)

	updated := marker
	if len(tags) > 0 {
		updated += " :" + strings.Join(tags, ":") + ":"
	}
	if updated == line || sameTags(splitTags(line[len(fileTagsMarker):]), tags) {
		return false, true
	}
	b.lines[i] = updated
	return true, true
}

// ReplaceTag returns tags with every source token replaced by target. The
// result never holds target twice, and an empty target drops source. Tags
// without source are returned as is.
func ReplaceTag(tags []string, source, target string) []string {
	hasSource, hasTarget := false, false
	for _, t := range tags {
		hasSource = hasSource || t == source
		hasTarget = hasTarget || t == target
	}
	if !hasSource || source == target {
		return append([]string(nil), tags...)
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == source {
			if hasTarget || target == "" {
				continue
			}
			t = target
			hasTarget = true
		}
		out = append(out, t)
	}
	return out
}

// FindNode locates the entry whose property drawer carries :ID: id. The file
// node is returned as a level 0 entry.
func (b *Buffer) FindNode(id string) (Entry, bool) {
	if v, ok := b.Property(b.FileEntry(), "ID"); ok && v == id {
		return b.FileEntry(), true
	}
	for i := range b.lines {
		if _, _, _, ok := b.headline(i); !ok {
			continue
		}
		e := b.entryFrom(i)
		if v, ok := b.Property(e, "ID"); ok && v == id {
			return e, true
		}
	}
	return Entry{}, false
}

// drawer returns the bounds of the property drawer belonging to e: the
// :PROPERTIES: line and the :END: line. insertAt is where a new drawer goes.
func (b *Buffer) drawer(e Entry) (open, end, insertAt int, ok bool) {
	i := e.Start
	if e.Level > 0 {
		i++
		for i < e.End && planningRe.MatchString(b.lines[i]) {
			i++
		}
		insertAt = i
	} else {
		for i < len(b.lines) && strings.TrimSpace(b.lines[i]) == "" {
			i++
		}
		insertAt = 0
	}
	limit := e.End
	if e.Level == 0 {
		limit = b.firstHeadline()
	}
	if i >= limit || !strings.EqualFold(strings.TrimSpace(b.lines[i]), ":PROPERTIES:") {
		return 0, 0, insertAt, false
	}
	for j := i + 1; j < limit; j++ {
		if strings.EqualFold(strings.TrimSpace(b.lines[j]), ":END:") {
			return i, j, insertAt, true
		}
	}
	return 0, 0, insertAt, false
}

func (b *Buffer) firstHeadline() int {
	for i := range b.lines {
		if _, _, _, ok := b.headline(i); ok {
			return i
		}
	}
	return len(b.lines)
}

// Property returns the value of key in the entry's property drawer.
func (b *Buffer) Property(e Entry, key string) (string, bool) {
	open, end, _, ok := b.drawer(e)
	if !ok {
		return "", false
	}
	for j := open + 1; j < end; j++ {
		if m := propLineRe.FindStringSubmatch(b.lines[j]); m != nil && strings.EqualFold(m[1], key) {
			return m[2], true
		}
	}
	return "", false
}

// Properties returns every property of the entry's drawer.
func (b *Buffer) Properties(e Entry) map[string]string {
	open, end, _, ok := b.drawer(e)
	if !ok {
		return nil
	}
	props := make(map[string]string, end-open)
	for j := open + 1; j < end; j++ {
		if m := propLineRe.FindStringSubmatch(b.lines[j]); m != nil {
			props[strings.ToUpper(m[1])] = m[2]
		}
	}
	return props
}

// SetProperty writes key into the entry's property drawer, creating the
// drawer when missing. It reports whether the buffer changed.
func (b *Buffer) SetProperty(e Entry, key, value string) bool {
	line := fmt.Sprintf(":%s: %s", key, value)
	open, end, insertAt, ok := b.drawer(e)
	if !ok {
		b.Insert(insertAt, strings.Join([]string{":PROPERTIES:", line, ":END:"}, "\n"))
		return true
	}
	for j := open + 1; j < end; j++ {
		if m := propLineRe.FindStringSubmatch(b.lines[j]); m != nil && strings.EqualFold(m[1], key) {
			if m[2] == value {
				return false
			}
			b.lines[j] = line
			return true
		}
	}
	b.Insert(end, line)
	return true
}

func splitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t'
	})
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
