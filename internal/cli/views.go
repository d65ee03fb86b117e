package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// recordView is a record with its predecessors, URIs and tags.
type recordView struct {
	model.Record
	Predecessors []int64     `json:"predecessors"`
	URIs         []string    `json:"uris"`
	Tags         []model.Tag `json:"tags"`
}

func describe(ctx context.Context, s *store.Store, sess *store.Session, rec model.Record) (recordView, error) {
	preds, err := s.Predecessors(ctx, sess, rec.ID)
	if err != nil {
		return recordView{}, err
	}
	uris, err := s.URIs(ctx, sess, rec.ID)
	if err != nil {
		return recordView{}, err
	}
	tags, err := s.Tags(ctx, sess, rec.ID)
	if err != nil {
		return recordView{}, err
	}

	ids := make([]int64, len(preds))
	for i, p := range preds {
		ids[i] = p.ID
	}
	return recordView{Record: rec, Predecessors: ids, URIs: uris, Tags: tags}, nil
}

// String renders one record the way "print" lists it:
//
//	[    2] : output.h5        2024-01-01T00:00:00Z <- [1]
//				 URI: file:///data/output.h5
//				 TAG: site = 'ornl'
func (v recordView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%5d] : %-16s %s <- %s", v.ID, v.Name, v.CreatedAt.UTC().Format(time.RFC3339), formatIDs(v.Predecessors))
	if !v.IsValid() {
		fmt.Fprintf(&b, " INVALID(%s)", v.InvalidationID)
	}
	if v.ActionID != "" {
		fmt.Fprintf(&b, " ACTION(%s)", v.ActionID)
	}
	for _, u := range v.URIs {
		b.WriteString("\n\t\t\t URI: ")
		b.WriteString(u)
	}
	for _, t := range v.Tags {
		quote := ""
		if t.Type == model.TagString {
			quote = "'"
		}
		fmt.Fprintf(&b, "\n\t\t\t TAG: %s = %s%s%s", t.Key, quote, t.Value, quote)
	}
	return b.String()
}

type recordList []recordView

func (l recordList) String() string {
	if len(l) == 0 {
		return "(no records)"
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

func describeAll(ctx context.Context, s *store.Store, sess *store.Session, recs []model.Record) (recordList, error) {
	views := make(recordList, 0, len(recs))
	for _, rec := range recs {
		v, err := describe(ctx, s, sess, rec)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// cascadeView is one root invalidation and everything its cascade bound.
type cascadeView struct {
	Root          model.Invalidation   `json:"root"`
	Invalidations []model.Invalidation `json:"invalidations"`
	Records       recordList           `json:"records"`
}

func describeCascade(ctx context.Context, s *store.Store, rootID string) (cascadeView, error) {
	root, found, err := s.GetInvalidation(ctx, nil, rootID)
	if err != nil {
		return cascadeView{}, err
	}
	if !found {
		return cascadeView{}, model.NewInvalidArgument(fmt.Sprintf("invalidation %s does not exist", rootID))
	}
	if !root.IsRoot() {
		return cascadeView{}, model.NewInvalidArgument(fmt.Sprintf("invalidation %s is not a root, its root is %s", rootID, root.RootID))
	}

	invs, err := s.InvalidationsByRoot(ctx, nil, rootID)
	if err != nil {
		return cascadeView{}, err
	}
	recs, err := s.InvalidatedBy(ctx, nil, rootID)
	if err != nil {
		return cascadeView{}, err
	}
	views, err := describeAll(ctx, s, nil, recs)
	if err != nil {
		return cascadeView{}, err
	}
	return cascadeView{Root: root, Invalidations: invs, Records: views}, nil
}

// String renders the cascade header followed by its records:
//
//	ROOT inv-2 'bad calibration' 2024-01-01T00:00:00Z, 1 cascaded
func (v cascadeView) String() string {
	header := fmt.Sprintf("ROOT %s '%s' %s, %d cascaded", v.Root.ID, v.Root.Cause,
		v.Root.CreatedAt.UTC().Format(time.RFC3339), len(v.Invalidations))
	return header + "\n" + v.Records.String()
}
