package organize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/orgfile"
)

// Counter is a node count written into an anchor.
type Counter struct {
	Tag      string `json:"tag"`
	Anchor   string `json:"anchor"`
	Property string `json:"property"`
	Count    int    `json:"count"`
}

// BatchResult collects what a batch operation did. Warnings are per-item
// failures that did not stop the batch.
type BatchResult struct {
	Counters []Counter      `json:"counters,omitempty"`
	Inserted map[string]int `json:"inserted"`
	Warnings []string       `json:"warnings,omitempty"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{Inserted: map[string]int{}}
}

// Partial reports whether at least one item failed.
func (r *BatchResult) Partial() bool { return len(r.Warnings) > 0 }

// TotalInserted sums the inserted backlinks over all anchors.
func (r *BatchResult) TotalInserted() int {
	n := 0
	for _, v := range r.Inserted {
		n += v
	}
	return n
}

// CounterProperty names the property holding the node count of tag.
func CounterProperty(tag string) string {
	return "NUM_OF_" + strings.ToUpper(tag) + "_NODES"
}

// UpdateMOCs writes the level 0 node count of every configured tag into its
// anchor and completes the anchor's backlinks. An anchor that cannot be
// resolved produces a warning and the batch goes on. When one anchor serves
// several tags each tag gets its own property.
func (s *Service) UpdateMOCs(_ context.Context) (*BatchResult, error) {
	res := newBatchResult()
	tags := s.roam.MOCTags()
	if len(tags) == 0 {
		return res, nil
	}

	counts, err := s.idx.CountLevel0ByTag(tags)
	if err != nil {
		return nil, err
	}
	pairs := make([]Pair, len(tags))
	for i, t := range tags {
		pairs[i] = Pair{Key: t, Anchor: s.roam.MOCs[t]}
	}
	missing, err := s.MissingLinks(pairs, GroupByTag)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		n, ok := counts[p.Key]
		if !ok {
			res.Warnings = append(res.Warnings, s.warn("no count for tag %q", p.Key))
			continue
		}
		prop := CounterProperty(p.Key)
		err := s.setAnchorProperty(p.Anchor, prop, strconv.Itoa(n))
		if errors.Is(err, apperr.ErrUnknownNode) {
			res.Warnings = append(res.Warnings, s.warn("counter for tag %q skipped: %v", p.Key, err))
			continue
		}
		if err != nil {
			return res, err
		}
		res.Counters = append(res.Counters, Counter{Tag: p.Key, Anchor: p.Anchor, Property: prop, Count: n})
	}

	if err := s.insertMissing(res, missing); err != nil {
		return res, err
	}

	s.logger.Info("organize: mocs updated",
		slog.Int("counters", len(res.Counters)),
		slog.Int("backlinks", res.TotalInserted()),
		slog.Int("warnings", len(res.Warnings)))
	return res, nil
}

// setAnchorProperty writes key into the property drawer of the anchor node.
// It fails with ErrUnknownNode when the anchor cannot be found in the index
// or in its file.
func (s *Service) setAnchorProperty(anchorID, key, value string) error {
	anchor, err := s.idx.GetNode(anchorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("anchor %q: %w", anchorID, apperr.ErrUnknownNode)
	}
	if err != nil {
		return err
	}
	data, err := s.store.Read(anchor.File)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("anchor %q: file %s: %w", anchorID, anchor.File, apperr.ErrUnknownNode)
	}
	if err != nil {
		return err
	}
	buf := orgfile.NewBuffer(data)
	entry, ok := buf.FindNode(anchorID)
	if !ok {
		return fmt.Errorf("anchor %q: not in %s: %w", anchorID, anchor.File, apperr.ErrUnknownNode)
	}
	if !buf.SetProperty(entry, key, value) {
		return nil
	}
	return s.store.Write(anchor.File, buf.Bytes())
}
