// Package graph renders the provenance graph as a Mermaid flowchart.
//
// Output is deterministic: records appear in id order, then actions and
// invalidations in id order, then links. Valid records are yellow, invalid
// records pink, actions green and invalidations violet.
package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

const (
	maxURILen      = 90
	maxTagKeyLen   = 25
	maxTagValueLen = 32

	colorValid        = "LightGoldenRodYellow"
	colorInvalid      = "LightPink"
	colorAction       = "MediumSpringGreen"
	colorInvalidation = "Violet"
)

// Renderer reads a store and renders Mermaid diagrams.
type Renderer struct {
	store *store.Store
}

// New creates a Renderer over s.
func New(s *store.Store) *Renderer {
	return &Renderer{store: s}
}

// Mermaid renders the connected component containing recordID, following
// derivations in both directions. recordID 0 renders every record.
// A missing record is REFERENTIAL_ERROR.
func (r *Renderer) Mermaid(ctx context.Context, sess *store.Session, recordID int64) (string, error) {
	records, err := r.component(ctx, sess, recordID)
	if err != nil {
		return "", err
	}
	inSet := make(map[int64]bool, len(records))
	for _, rec := range records {
		inSet[rec.ID] = true
	}

	allEdges, err := r.store.ListDerivations(ctx, sess)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("graph TD\n")

	actionIDs := []string{}
	invalidationIDs := []string{}
	for _, rec := range records {
		label, err := r.recordLabel(ctx, sess, rec)
		if err != nil {
			return "", err
		}
		color := colorValid
		if !rec.IsValid() {
			color = colorInvalid
			invalidationIDs = appendUnique(invalidationIDs, rec.InvalidationID)
		}
		fmt.Fprintf(&b, "%s(\"%s\")\n", recordNode(rec.ID), label)
		fmt.Fprintf(&b, "style %s fill:%s\n", recordNode(rec.ID), color)
		if rec.ActionID != "" {
			actionIDs = appendUnique(actionIDs, rec.ActionID)
		}
	}

	slices.Sort(actionIDs)
	for _, id := range actionIDs {
		a, found, err := r.store.GetAction(ctx, sess, id)
		if err != nil {
			return "", err
		}
		if !found {
			return "", model.NewReferentialError(fmt.Sprintf("action %s does not exist", id), nil)
		}
		fmt.Fprintf(&b, "%s{{\"%s<br>%s\"}}\n", actionNode(id), escape(a.Name), escape(a.Command))
		fmt.Fprintf(&b, "style %s fill:%s\n", actionNode(id), colorAction)
	}

	// Roots are rendered even when bound outside the component
	invalidations := map[string]model.Invalidation{}
	for i := 0; i < len(invalidationIDs); i++ {
		id := invalidationIDs[i]
		inv, found, err := r.store.GetInvalidation(ctx, sess, id)
		if err != nil {
			return "", err
		}
		if !found {
			return "", model.NewReferentialError(fmt.Sprintf("invalidation %s does not exist", id), nil)
		}
		invalidations[id] = inv
		if inv.RootID != "" {
			invalidationIDs = appendUnique(invalidationIDs, inv.RootID)
		}
	}
	slices.Sort(invalidationIDs)
	for _, id := range invalidationIDs {
		fmt.Fprintf(&b, "%s[/\"%s\"/]\n", invalidationNode(id), escape(invalidations[id].Cause))
		fmt.Fprintf(&b, "style %s fill:%s\n", invalidationNode(id), colorInvalidation)
	}

	for _, e := range allEdges {
		if inSet[e.PredecessorID] && inSet[e.SuccessorID] {
			fmt.Fprintf(&b, "%s --> %s\n", recordNode(e.PredecessorID), recordNode(e.SuccessorID))
		}
	}
	for _, rec := range records {
		if rec.ActionID != "" {
			fmt.Fprintf(&b, "%s -.-> %s\n", actionNode(rec.ActionID), recordNode(rec.ID))
		}
	}
	for _, rec := range records {
		if !rec.IsValid() {
			fmt.Fprintf(&b, "%s -.-o|Invalidates| %s\n", invalidationNode(rec.InvalidationID), recordNode(rec.ID))
		}
	}
	for _, id := range invalidationIDs {
		if root := invalidations[id].RootID; root != "" {
			fmt.Fprintf(&b, "%s ==>|Causes| %s\n", invalidationNode(root), invalidationNode(id))
		}
	}
	return b.String(), nil
}

// component returns the records reachable from recordID in either
// direction, ordered by id.
func (r *Renderer) component(ctx context.Context, sess *store.Session, recordID int64) ([]model.Record, error) {
	if recordID == 0 {
		return r.store.ListRecords(ctx, sess)
	}

	start, found, err := r.store.GetRecord(ctx, sess, recordID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.NewReferentialError(fmt.Sprintf("record %d does not exist", recordID), nil)
	}

	visited := map[int64]model.Record{start.ID: start}
	queue := []int64{start.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		succ, err := r.store.Successors(ctx, sess, id)
		if err != nil {
			return nil, err
		}
		pred, err := r.store.Predecessors(ctx, sess, id)
		if err != nil {
			return nil, err
		}
		for _, next := range append(succ, pred...) {
			if _, seen := visited[next.ID]; !seen {
				visited[next.ID] = next
				queue = append(queue, next.ID)
			}
		}
	}

	records := make([]model.Record, 0, len(visited))
	for _, rec := range visited {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b model.Record) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return records, nil
}

func (r *Renderer) recordLabel(ctx context.Context, sess *store.Session, rec model.Record) (string, error) {
	name := rec.Name
	if name == "" {
		name = fmt.Sprintf("#%d", rec.ID)
	}
	label := escape(name)

	uris, err := r.store.URIs(ctx, sess, rec.ID)
	if err != nil {
		return "", err
	}
	if len(uris) > 0 {
		rows := make([]string, len(uris))
		for i, u := range uris {
			rows[i] = escape(truncate(u, maxURILen, false))
		}
		label += "<hr>" + strings.Join(rows, "<br>")
	}

	tags, err := r.store.Tags(ctx, sess, rec.ID)
	if err != nil {
		return "", err
	}
	if len(tags) > 0 {
		rows := make([]string, len(tags))
		for i, t := range tags {
			rows[i] = escape(truncate(t.Key, maxTagKeyLen, true)) + " = " + escape(truncate(t.Value, maxTagValueLen, false))
		}
		label += "<hr>" + strings.Join(rows, "<br>")
	}
	return label, nil
}

// HTML wraps a diagram in a page that renders it with mermaid.js.
func HTML(diagram string) string {
	return htmlHeader + diagram + htmlFooter
}

const htmlHeader = `<html>
  <body>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <script>mermaid.initialize({ startOnLoad: true });</script>
    <div class="mermaid">
`

const htmlFooter = `    </div>
  </body>
</html>
`

func recordNode(id int64) string {
	return fmt.Sprintf("record%d", id)
}

func actionNode(id string) string {
	return "action_" + nodeID(id)
}

func invalidationNode(id string) string {
	return "invalidation_" + nodeID(id)
}

// nodeID maps an id onto characters Mermaid accepts in node names.
func nodeID(id string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, id)
}

// escape makes s safe inside a quoted Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// truncate shortens s to max runes plus an ellipsis. fromRight keeps the
// tail instead of the head.
func truncate(s string, max int, fromRight bool) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if fromRight {
		return "..." + string(runes[len(runes)-max:])
	}
	return string(runes[:max]) + "..."
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
