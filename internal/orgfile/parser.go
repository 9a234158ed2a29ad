package orgfile

import (
	"regexp"
	"strings"

	"github.com/starford/roamorg/internal/models"
)

var (
	titleRe    = regexp.MustCompile(`(?i)^#\+title:\s*(.*?)\s*$`)
	idLinkRe   = regexp.MustCompile(`\[\[id:([^\]]+)\](?:\[([^\]]*)\])?\]`)
	titleIDRe  = regexp.MustCompile(`\[\[id:([^\]]+)\]\[[^\]]*\]\]`)
	citeLinkRe = regexp.MustCompile(`\[\[cite:[&@]?([^\]]+)\](?:\[[^\]]*\])?\]`)
	orgCiteRe  = regexp.MustCompile(`\[cite(?:/[^:\]]*)?:([^\]]*)\]`)
	citeKeyRe  = regexp.MustCompile(`@([^\s;\]]+)`)
)

// NodeInfo is a node declared in a file: the file itself (level 0) or a
// headline with an :ID: property.
type NodeInfo struct {
	ID         string
	Title      string
	Level      int
	Line       int // 1-based, 0 for the file node
	Tags       []string
	Properties map[string]string
}

// Result holds the output of parsing an org file.
type Result struct {
	Title    string
	FileTags []string
	Nodes    []NodeInfo
	Links    []models.Link
	Refs     []models.Ref
}

// Parse extracts nodes, tags, links and refs from raw org bytes. Links are
// attributed to the innermost enclosing node; links outside any node are
// dropped.
func Parse(data []byte) (*Result, error) {
	b := NewBuffer(data)
	res := &Result{}
	res.FileTags, _ = b.FileTags()

	for i := 0; i < b.Len(); i++ {
		if _, _, _, ok := b.headline(i); ok {
			break
		}
		if m := titleRe.FindStringSubmatch(b.Line(i)); m != nil {
			res.Title = m[1]
		}
	}

	fileID := ""
	if props := b.Properties(b.FileEntry()); props["ID"] != "" && !excluded(props) {
		fileID = props["ID"]
		res.Nodes = append(res.Nodes, NodeInfo{
			ID:         fileID,
			Title:      res.Title,
			Level:      0,
			Tags:       dedupe(res.FileTags),
			Properties: props,
		})
		res.Refs = append(res.Refs, parseRefs(fileID, props["ROAM_REFS"])...)
	}

	type frame struct {
		level int
		id    string
		tags  []string
	}
	var stack []frame

	source := func() string {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].id != "" {
				return stack[i].id
			}
		}
		return fileID
	}

	for i := 0; i < b.Len(); i++ {
		if level, title, tags, ok := b.headline(i); ok {
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			inherited := append([]string(nil), res.FileTags...)
			for _, f := range stack {
				inherited = append(inherited, f.tags...)
			}
			f := frame{level: level, tags: tags}

			e := b.entryFrom(i)
			if props := b.Properties(e); props["ID"] != "" && !excluded(props) {
				f.id = props["ID"]
				res.Nodes = append(res.Nodes, NodeInfo{
					ID:         f.id,
					Title:      StripLinks(title),
					Level:      level,
					Line:       i + 1,
					Tags:       dedupe(append(inherited, tags...)),
					Properties: props,
				})
				res.Refs = append(res.Refs, parseRefs(f.id, props["ROAM_REFS"])...)
			}
			stack = append(stack, f)
		}

		src := source()
		if src == "" {
			continue
		}
		res.Links = append(res.Links, lineLinks(src, b.Line(i))...)
	}

	return res, nil
}

// lineLinks returns the id and cite links found on one line.
func lineLinks(source, line string) []models.Link {
	var out []models.Link
	for _, m := range idLinkRe.FindAllStringSubmatch(line, -1) {
		out = append(out, models.Link{Source: source, Dest: strings.TrimSpace(m[1]), Type: models.LinkTypeID})
	}
	for _, m := range citeLinkRe.FindAllStringSubmatch(line, -1) {
		out = append(out, models.Link{Source: source, Dest: strings.TrimSpace(m[1]), Type: models.LinkTypeCite})
	}
	for _, m := range orgCiteRe.FindAllStringSubmatch(line, -1) {
		for _, k := range citeKeyRe.FindAllStringSubmatch(m[1], -1) {
			out = append(out, models.Link{Source: source, Dest: k[1], Type: models.LinkTypeCite})
		}
	}
	return out
}

// parseRefs splits a ROAM_REFS value into citation keys and URLs.
func parseRefs(nodeID, value string) []models.Ref {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []models.Ref
	for _, m := range orgCiteRe.FindAllStringSubmatch(value, -1) {
		for _, k := range citeKeyRe.FindAllStringSubmatch(m[1], -1) {
			out = append(out, models.Ref{NodeID: nodeID, Ref: k[1], Type: models.LinkTypeCite})
		}
	}
	value = orgCiteRe.ReplaceAllString(value, " ")
	for _, tok := range strings.Fields(value) {
		tok = strings.Trim(tok, `"`)
		switch {
		case strings.HasPrefix(tok, "@"):
			out = append(out, models.Ref{NodeID: nodeID, Ref: tok[1:], Type: models.LinkTypeCite})
		case strings.HasPrefix(tok, "cite:"):
			key := strings.TrimLeft(strings.TrimPrefix(tok, "cite:"), "&@")
			out = append(out, models.Ref{NodeID: nodeID, Ref: key, Type: models.LinkTypeCite})
		case strings.Contains(tok, "://"):
			scheme, rest, _ := strings.Cut(tok, ":")
			out = append(out, models.Ref{NodeID: nodeID, Ref: rest, Type: scheme})
		}
	}
	return out
}

// IDFromTitle extracts the node id of the first [[id:ID][...]] link in a
// headline title.
func IDFromTitle(title string) (string, bool) {
	m := titleIDRe.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// StripLinks replaces every link in s by its description.
func StripLinks(s string) string {
	return idLinkRe.ReplaceAllStringFunc(s, func(link string) string {
		m := idLinkRe.FindStringSubmatch(link)
		if m[2] != "" {
			return m[2]
		}
		return m[1]
	})
}

// LinkEntry renders a minimal headline linking to a node.
func LinkEntry(level int, id, title string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("*", level) + " [[id:" + id + "][" + title + "]]\n"
}

func excluded(props map[string]string) bool {
	v := strings.ToLower(strings.TrimSpace(props["ROAM_EXCLUDE"]))
	return v != "" && v != "nil"
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
