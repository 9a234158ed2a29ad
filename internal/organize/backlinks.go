package organize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/models"
	"github.com/starford/roamorg/internal/orgfile"
)

// Group selects what anchors are grouped by.
type Group int

// Groupings.
const (
	GroupByTag Group = iota
	GroupByCitekey
)

func (g Group) String() string {
	switch g {
	case GroupByTag:
		return "tag"
	case GroupByCitekey:
		return "citekey"
	}
	return fmt.Sprintf("Group(%d)", int(g))
}

// linkTypes lists the link kinds that count as an existing backlink. Entries
// inserted by InsertLinkEntries are id links, so both groupings honor them.
func (g Group) linkTypes() []string {
	if g == GroupByCitekey {
		return []string{models.LinkTypeID, models.LinkTypeCite}
	}
	return []string{models.LinkTypeID}
}

// Pair binds a grouping key (tag or citation key) to its anchor node.
type Pair struct {
	Key    string `json:"key"`
	Anchor string `json:"anchor"`
}

// MissingLinks returns, per anchor, the level 0 nodes sharing the anchor's
// key that the anchor does not link to yet. Every anchor is present in the
// result, with an empty list when nothing is missing. Lists are sorted and
// never contain the anchor itself.
func (s *Service) MissingLinks(pairs []Pair, group Group) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(pairs) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(pairs))
	anchors := make([]string, 0, len(pairs))
	seenKey, seenAnchor := map[string]bool{}, map[string]bool{}
	for _, p := range pairs {
		if !seenKey[p.Key] {
			seenKey[p.Key] = true
			keys = append(keys, p.Key)
		}
		if !seenAnchor[p.Anchor] {
			seenAnchor[p.Anchor] = true
			anchors = append(anchors, p.Anchor)
		}
	}

	var members map[string][]string
	var err error
	switch group {
	case GroupByTag:
		members, err = s.idx.Level0IDsByTag(keys)
	case GroupByCitekey:
		members, err = s.idx.Level0IDsByCitekey(keys)
	default:
		return nil, fmt.Errorf("organize: unknown grouping %s", group)
	}
	if err != nil {
		return nil, err
	}

	linked := make(map[string]map[string]bool, len(anchors))
	for _, kind := range group.linkTypes() {
		existing, err := s.idx.ExistingLinkTargets(anchors, kind)
		if err != nil {
			return nil, err
		}
		for src, dests := range existing {
			if linked[src] == nil {
				linked[src] = map[string]bool{}
			}
			for _, d := range dests {
				linked[src][d] = true
			}
		}
	}

	want := make(map[string]map[string]bool, len(anchors))
	for _, p := range pairs {
		if want[p.Anchor] == nil {
			want[p.Anchor] = map[string]bool{}
		}
		for _, id := range members[p.Key] {
			if id == p.Anchor || linked[p.Anchor][id] {
				continue
			}
			want[p.Anchor][id] = true
		}
	}
	for anchor, set := range want {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[anchor] = ids
	}
	return out, nil
}

// InsertLinkEntries appends one "* [[id:X][Title]]" headline per id to the
// anchor: at the end of the file for a file node, at the end of its subtree
// one level deeper for a headline node. Ids that do not resolve are skipped
// with a warning, as are all ids when the anchor itself does not resolve.
func (s *Service) InsertLinkEntries(anchorID string, ids []string) (int, []string, error) {
	if len(ids) == 0 {
		return 0, nil, nil
	}

	var warnings []string
	skipAll := func(reason string) (int, []string, error) {
		for _, id := range ids {
			warnings = append(warnings, s.warn("backlink to %q skipped: anchor %q %s", id, anchorID, reason))
		}
		return 0, warnings, nil
	}

	anchor, err := s.idx.GetNode(anchorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return skipAll("is not in the index")
	}
	if err != nil {
		return 0, nil, err
	}
	data, err := s.store.Read(anchor.File)
	if errors.Is(err, os.ErrNotExist) {
		return skipAll("has no file")
	}
	if err != nil {
		return 0, nil, err
	}
	buf := orgfile.NewBuffer(data)
	entry, ok := buf.FindNode(anchorID)
	if !ok {
		return skipAll("is not in " + anchor.File)
	}

	level, at := entry.Level+1, entry.End
	inserted := 0
	for _, id := range ids {
		target, err := s.idx.GetNode(id)
		if errors.Is(err, apperr.ErrNotFound) {
			warnings = append(warnings, s.warn("backlink to %q skipped: node is not in the index", id))
			continue
		}
		if err != nil {
			return inserted, warnings, err
		}
		buf.Insert(at, orgfile.LinkEntry(level, id, target.Title))
		at++
		inserted++
	}

	if inserted > 0 {
		if err := s.store.Write(anchor.File, buf.Bytes()); err != nil {
			return 0, warnings, err
		}
		s.logger.Info("organize: backlinks inserted",
			slog.String("anchor", anchorID),
			slog.Int("count", inserted))
	}
	return inserted, warnings, nil
}

// CompleteRefBacklinks links every literature node (a node declaring a
// citation key in its refs) to the level 0 nodes citing that key.
func (s *Service) CompleteRefBacklinks(_ context.Context) (*BatchResult, error) {
	refs, err := s.idx.RefAnchors()
	if err != nil {
		return nil, err
	}
	res := newBatchResult()
	if len(refs) == 0 {
		return res, nil
	}
	pairs := make([]Pair, len(refs))
	for i, r := range refs {
		pairs[i] = Pair{Key: r.Ref, Anchor: r.NodeID}
	}
	missing, err := s.MissingLinks(pairs, GroupByCitekey)
	if err != nil {
		return nil, err
	}
	if err := s.insertMissing(res, missing); err != nil {
		return res, err
	}
	return res, nil
}

// insertMissing inserts the missing entries anchor by anchor, in order.
func (s *Service) insertMissing(res *BatchResult, missing map[string][]string) error {
	anchors := make([]string, 0, len(missing))
	for a := range missing {
		anchors = append(anchors, a)
	}
	sort.Strings(anchors)
	for _, a := range anchors {
		n, warnings, err := s.InsertLinkEntries(a, missing[a])
		res.Warnings = append(res.Warnings, warnings...)
		if err != nil {
			return err
		}
		if n > 0 {
			res.Inserted[a] = n
		}
	}
	return nil
}

// warn logs a batch warning and returns its text.
func (s *Service) warn(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	s.logger.Warn("organize: " + msg)
	return msg
}
