package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// Result lists what Apply created.
type Result struct {
	Actions     []model.InvalidationAction `json:"actions"`
	Records     []model.Record             `json:"records"`
	Derivations []model.Derivation         `json:"derivations"`

	// Refs maps manifest refs to the ids of the records created for them.
	Refs map[string]int64 `json:"refs"`
}

// Apply writes m to the store. Actions are created first, then records in
// document order (a record before its nested derivations), then edges.
//
// With a nil sess Apply runs in its own session and commits only if every
// step succeeds. With a caller's session nothing is committed here.
func Apply(ctx context.Context, s *store.Store, sess *store.Session, m *Manifest, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := m.Validate(); err != nil {
		return Result{}, model.NewInvalidArgument(fmt.Sprintf("invalid manifest: %v", err))
	}

	if sess == nil {
		own, err := s.Begin(ctx)
		if err != nil {
			return Result{}, err
		}
		defer own.Close()

		res, err := apply(ctx, s, own, m, logger)
		if err != nil {
			return Result{}, err
		}
		if err := own.Commit(); err != nil {
			return Result{}, err
		}
		return res, nil
	}
	return apply(ctx, s, sess, m, logger)
}

type pendingEdge struct {
	predecessor int64
	successor   int64
}

type refEdge struct {
	ref       string
	successor int64
}

func apply(ctx context.Context, s *store.Store, sess *store.Session, m *Manifest, logger *slog.Logger) (Result, error) {
	res := Result{
		Actions:     []model.InvalidationAction{},
		Records:     []model.Record{},
		Derivations: []model.Derivation{},
		Refs:        map[string]int64{},
	}

	actionIDs := make(map[string]string, len(m.Actions))
	for _, spec := range m.Actions {
		a, err := buildAction(spec)
		if err != nil {
			return Result{}, err
		}
		created, err := s.CreateAction(ctx, sess, a)
		if err != nil {
			return Result{}, fmt.Errorf("action %q: %w", spec.Name, err)
		}
		actionIDs[spec.Name] = created.ID
		res.Actions = append(res.Actions, created)
	}

	var edges []pendingEdge
	var refEdges []refEdge

	var create func(specs []RecordSpec, parent int64) error
	create = func(specs []RecordSpec, parent int64) error {
		for _, spec := range specs {
			rec, err := createRecord(ctx, s, sess, spec, actionIDs)
			if err != nil {
				return err
			}
			res.Records = append(res.Records, rec)
			if spec.Ref != "" {
				res.Refs[spec.Ref] = rec.ID
			}

			if parent != 0 {
				edges = append(edges, pendingEdge{predecessor: parent, successor: rec.ID})
			}
			for _, id := range spec.DerivedFromRecordID {
				edges = append(edges, pendingEdge{predecessor: id, successor: rec.ID})
			}
			for _, ref := range spec.DerivedFrom {
				refEdges = append(refEdges, refEdge{ref: ref, successor: rec.ID})
			}

			if err := create(spec.Derivations, rec.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := create(m.Records, 0); err != nil {
		return Result{}, err
	}

	// Refs may point forward, so they resolve after every record exists
	for _, re := range refEdges {
		edges = append(edges, pendingEdge{predecessor: res.Refs[re.ref], successor: re.successor})
	}
	for _, e := range edges {
		d, err := s.AddDerivation(ctx, sess, e.predecessor, e.successor)
		if err != nil {
			return Result{}, fmt.Errorf("derivation %d -> %d: %w", e.predecessor, e.successor, err)
		}
		res.Derivations = append(res.Derivations, d)
	}

	logger.InfoContext(ctx, "manifest applied",
		"actions", len(res.Actions),
		"records", len(res.Records),
		"derivations", len(res.Derivations),
	)
	return res, nil
}

func buildAction(spec ActionSpec) (model.InvalidationAction, error) {
	typ, err := model.ParseActionType(spec.Type)
	if err != nil {
		return model.InvalidationAction{}, err
	}
	params, err := model.ObjectFromAny(spec.Params)
	if err != nil {
		return model.InvalidationAction{}, model.NewInvalidArgument(fmt.Sprintf("action %q params: %v", spec.Name, err))
	}
	if len(spec.Args) > 0 {
		params["args"] = model.ShellParams(spec.Args...)["args"]
	}
	return model.InvalidationAction{
		Name:    spec.Name,
		Type:    typ,
		Command: spec.Command,
		Params:  params,
	}, nil
}

func createRecord(ctx context.Context, s *store.Store, sess *store.Session, spec RecordSpec, actionIDs map[string]string) (model.Record, error) {
	kind, err := model.ParseKind(spec.Kind)
	if err != nil {
		return model.Record{}, err
	}

	actionID := ""
	if spec.Action != "" {
		if id, ok := actionIDs[spec.Action]; ok {
			actionID = id
		} else {
			if _, found, err := s.GetAction(ctx, sess, spec.Action); err != nil {
				return model.Record{}, err
			} else if !found {
				return model.Record{}, model.NewReferentialError(fmt.Sprintf("record %q: action %q is neither declared nor stored", spec.Name, spec.Action), nil)
			}
			actionID = spec.Action
		}
	}

	rec, err := s.CreateRecord(ctx, sess, model.Record{Name: spec.Name, Kind: kind, ActionID: actionID})
	if err != nil {
		return model.Record{}, fmt.Errorf("record %q: %w", spec.Name, err)
	}

	for _, key := range slices.Sorted(maps.Keys(spec.Tags)) {
		tag := spec.Tags[key]
		typ, err := tagType(tag)
		if err != nil {
			return model.Record{}, fmt.Errorf("record %q tag %q: %w", spec.Name, key, err)
		}
		if _, err := s.AddTag(ctx, sess, rec.ID, key, tag.Value, typ); err != nil {
			return model.Record{}, fmt.Errorf("record %q tag %q: %w", spec.Name, key, err)
		}
	}
	for _, uri := range spec.URIs {
		if _, err := s.AddURI(ctx, sess, rec.ID, uri); err != nil {
			return model.Record{}, fmt.Errorf("record %q: %w", spec.Name, err)
		}
	}
	return rec, nil
}

func tagType(t TagSpec) (model.TagType, error) {
	if t.Type != "" {
		return model.ParseTagType(t.Type)
	}
	switch v := t.Value.(type) {
	case int, int64, uint64:
		return model.TagInteger, nil
	case float64:
		return model.TagFloat, nil
	case json.Number:
		if strings.ContainsAny(string(v), ".eE") {
			return model.TagFloat, nil
		}
		return model.TagInteger, nil
	}
	return model.TagString, nil
}
