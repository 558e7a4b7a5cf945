package usecase

import (
	"context"
	"slices"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/utils/set"
)

// TeamRemoval selects what happens to destination teams missing from the source
type TeamRemoval string

const (
	// TeamRemovalDelete deletes the team
	TeamRemovalDelete TeamRemoval = "delete"
	// TeamRemovalArchive renames the team with RemovedTeamPrefix and moves it under the root
	TeamRemovalArchive TeamRemoval = "archive"
)

// RemovedTeamPrefix marks archived teams
const RemovedTeamPrefix = "(removed) "

// IsValid checks if the removal mode is known
func (m TeamRemoval) IsValid() bool {
	return m == TeamRemovalDelete || m == TeamRemovalArchive
}

// TeamPolicy toggles the optional parts of team reconciliation
type TeamPolicy struct {
	Removal TeamRemoval
}

// TeamReconciler converges the destination team tree to the source in four
// phases: remove, create, update (with membership) and sort. Each phase
// starts from a fresh destination listing.
type TeamReconciler struct {
	policy TeamPolicy
}

// NewTeamReconciler creates a TeamReconciler
func NewTeamReconciler(policy TeamPolicy) *TeamReconciler {
	if !policy.Removal.IsValid() {
		policy.Removal = TeamRemovalDelete
	}
	return &TeamReconciler{policy: policy}
}

// Reconcile runs all phases. Per-team failures are logged and counted; only
// run-fatal errors and listing failures are returned.
func (r *TeamReconciler) Reconcile(ctx context.Context, dest interfaces.Destination, src *model.SourceSet, stats *model.RunStats) error {
	phases := []struct {
		name string
		fn   func(context.Context, interfaces.Destination, *model.SourceSet, *model.RunStats) error
	}{
		{"remove", r.remove},
		{"create", r.create},
		{"update", r.update},
		{"sort", r.sort},
	}

	for _, p := range phases {
		ctxlog.From(ctx).Debug("Team reconciliation phase", "phase", p.name)
		if err := p.fn(ctx, dest, src, stats); err != nil {
			return goerr.Wrap(err, "team reconciliation failed", goerr.V("phase", p.name))
		}
	}
	return nil
}

// loadSnapshot lists destination teams and deletes every duplicate of a ref
// ID except the one to keep.
func (r *TeamReconciler) loadSnapshot(ctx context.Context, dest interfaces.Destination, stats *model.RunStats) (*model.TeamSnapshot, error) {
	logger := ctxlog.From(ctx)

	raw, err := dest.ListTeams(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list destination teams")
	}

	losers := model.PickDuplicateTeams(raw)
	if len(losers) > 0 {
		dropped := make(set.Set[types.TeamID], len(losers))
		for _, t := range losers {
			dropped.Add(t.ID)
			if err := dest.DeleteTeam(ctx, t.ID); err != nil {
				if err := handleEntityError(ctx, stats, "Failed to delete duplicated team", err,
					"name", t.Name, "ref_id", t.RefID); err != nil {
					return nil, err
				}
				continue
			}
			stats.TeamsRemoved++
			logger.Info("Deleted duplicated team", "name", t.Name, "ref_id", t.RefID, "team_id", t.ID)
		}

		raw = slices.DeleteFunc(raw, func(t *model.DestinationTeam) bool {
			return dropped.Has(t.ID)
		})
	}

	return model.NewTeamSnapshot(raw)
}

func (r *TeamReconciler) remove(ctx context.Context, dest interfaces.Destination, src *model.SourceSet, stats *model.RunStats) error {
	logger := ctxlog.From(ctx)

	snap, err := r.loadSnapshot(ctx, dest, stats)
	if err != nil {
		return err
	}

	wanted := make(set.Set[types.RefID], len(src.Teams))
	for _, t := range src.Teams {
		wanted.Add(t.RefID)
	}

	for _, t := range snap.Teams {
		if t.RefID != "" && wanted.Has(t.RefID) {
			continue
		}

		switch r.policy.Removal {
		case TeamRemovalArchive:
			if err := r.archive(ctx, dest, snap, t, stats); err != nil {
				return err
			}

		default:
			if err := dest.DeleteTeam(ctx, t.ID); err != nil {
				if goerr.HasTag(err, model.ErrTagNotFound) {
					logger.Info("Team already gone", "name", t.Name, "team_id", t.ID)
					continue
				}
				if err := handleEntityError(ctx, stats, "Failed to delete team", err,
					"name", t.Name, "ref_id", t.RefID); err != nil {
					return err
				}
				continue
			}
			stats.TeamsRemoved++
			logger.Info("Deleted team", "name", t.Name, "ref_id", t.RefID, "team_id", t.ID)
		}
	}

	return nil
}

func (r *TeamReconciler) archive(ctx context.Context, dest interfaces.Destination, snap *model.TeamSnapshot, t *model.DestinationTeam, stats *model.RunStats) error {
	if strings.HasPrefix(t.Name, RemovedTeamPrefix) && t.ParentID == snap.RootID {
		return nil
	}

	update := &model.TeamUpdate{ID: t.ID}
	if !strings.HasPrefix(t.Name, RemovedTeamPrefix) {
		name, err := model.UniqueTeamName(RemovedTeamPrefix+t.Name, snap.Names(t.ID))
		if err != nil {
			return handleEntityError(ctx, stats, "Failed to archive team", err, "name", t.Name)
		}
		update.Name = &name
	}
	if t.ParentID != snap.RootID {
		root := snap.RootID
		update.ParentID = &root
	}

	if _, err := dest.UpdateTeam(ctx, update); err != nil {
		return handleEntityError(ctx, stats, "Failed to archive team", err,
			"name", t.Name, "ref_id", t.RefID)
	}

	if update.Name != nil {
		t.Name = *update.Name
	}
	t.ParentID = snap.RootID
	stats.TeamsRemoved++
	ctxlog.From(ctx).Info("Archived team", "name", t.Name, "ref_id", t.RefID, "team_id", t.ID)
	return nil
}

func (r *TeamReconciler) create(ctx context.Context, dest interfaces.Destination, src *model.SourceSet, stats *model.RunStats) error {
	snap, err := r.loadSnapshot(ctx, dest, stats)
	if err != nil {
		return err
	}

	for _, st := range src.Teams {
		if _, ok := snap.ByRef[st.RefID]; ok {
			continue
		}

		name, err := model.UniqueTeamName(st.Name, snap.Names(""))
		if err != nil {
			if err := handleEntityError(ctx, stats, "Failed to create team", err,
				"name", st.Name, "ref_id", st.RefID); err != nil {
				return err
			}
			continue
		}

		req := &model.TeamCreate{Name: name, RefID: st.RefID, ParentID: snap.RootID}
		created, err := dest.CreateTeam(ctx, req)
		if err != nil {
			if err := handleEntityError(ctx, stats, "Failed to create team", err,
				"name", name, "ref_id", st.RefID); err != nil {
				return err
			}
			continue
		}
		if created == nil || created.ID == "" {
			created = &model.DestinationTeam{Name: name, RefID: st.RefID, ParentID: snap.RootID, Depth: 1}
		}

		snap.Add(created)
		stats.TeamsCreated++
		ctxlog.From(ctx).Info("Created team", "name", name, "ref_id", st.RefID, "team_id", created.ID)
	}

	return nil
}

func (r *TeamReconciler) update(ctx context.Context, dest interfaces.Destination, src *model.SourceSet, stats *model.RunStats) error {
	snap, err := r.loadSnapshot(ctx, dest, stats)
	if err != nil {
		return err
	}

	destUsers, err := dest.ListUsers(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list destination users")
	}
	userIDByEmail := make(map[string]types.UserID, len(destUsers))
	for _, u := range destUsers {
		userIDByEmail[u.Email.Key()] = u.ID
	}
	sourceUsers := src.UserByRefID()

	for _, st := range src.Teams {
		t, ok := snap.ByRef[st.RefID]
		if !ok {
			continue
		}

		if err := r.updateTeam(ctx, dest, snap, st, t, stats); err != nil {
			return err
		}

		wanted := make(set.Set[types.UserID], len(st.MemberRefIDs))
		for _, ref := range st.MemberRefIDs {
			su, ok := sourceUsers[ref]
			if !ok {
				continue
			}
			if id, ok := userIDByEmail[su.Email.Key()]; ok {
				wanted.Add(id)
			}
		}

		if err := r.syncMembers(ctx, dest, t, wanted, stats); err != nil {
			return err
		}
	}

	return nil
}

func (r *TeamReconciler) updateTeam(ctx context.Context, dest interfaces.Destination, snap *model.TeamSnapshot, st *model.SourceTeam, t *model.DestinationTeam, stats *model.RunStats) error {
	update := &model.TeamUpdate{ID: t.ID}

	if model.SanitizeName(t.Name) != model.SanitizeName(st.Name) {
		name, err := model.UniqueTeamName(st.Name, snap.Names(t.ID))
		if err != nil {
			return handleEntityError(ctx, stats, "Failed to rename team", err,
				"name", t.Name, "ref_id", st.RefID)
		}
		if name != t.Name {
			update.Name = &name
		}
	}

	parentID := snap.RootID
	if parent, ok := snap.ByRef[st.ParentRefID]; ok && st.ParentRefID != "" && parent.ID != t.ID {
		parentID = parent.ID
	}
	if parentID != t.ParentID {
		update.ParentID = &parentID
	}

	if update.IsEmpty() {
		return nil
	}

	if _, err := dest.UpdateTeam(ctx, update); err != nil {
		return handleEntityError(ctx, stats, "Failed to update team", err,
			"name", t.Name, "ref_id", st.RefID)
	}

	if update.Name != nil {
		t.Name = *update.Name
	}
	t.ParentID = parentID
	stats.TeamsUpdated++
	ctxlog.From(ctx).Info("Updated team", "name", t.Name, "ref_id", st.RefID, "parent_id", parentID)
	return nil
}

func (r *TeamReconciler) syncMembers(ctx context.Context, dest interfaces.Destination, t *model.DestinationTeam, wanted set.Set[types.UserID], stats *model.RunStats) error {
	logger := ctxlog.From(ctx)
	current := set.New(t.UserIDs...)

	if add := set.Sorted(wanted.Difference(current)); len(add) > 0 {
		if err := dest.AddTeamMembers(ctx, t.ID, add); err != nil {
			if err := handleEntityError(ctx, stats, "Failed to add team members", err,
				"name", t.Name, "user_ids", add); err != nil {
				return err
			}
		} else {
			stats.MembersAdded += len(add)
			logger.Info("Added team members", "name", t.Name, "user_ids", add)
		}
	}

	if remove := set.Sorted(current.Difference(wanted)); len(remove) > 0 {
		if err := dest.RemoveTeamMembers(ctx, t.ID, remove); err != nil {
			if err := handleEntityError(ctx, stats, "Failed to remove team members", err,
				"name", t.Name, "user_ids", remove); err != nil {
				return err
			}
		} else {
			stats.MembersRemoved += len(remove)
			logger.Info("Removed team members", "name", t.Name, "user_ids", remove)
		}
	}

	return nil
}

func (r *TeamReconciler) sort(ctx context.Context, dest interfaces.Destination, src *model.SourceSet, stats *model.RunStats) error {
	snap, err := r.loadSnapshot(ctx, dest, stats)
	if err != nil {
		return err
	}

	for _, st := range src.Teams {
		t, ok := snap.ByRef[st.RefID]
		if !ok {
			continue
		}

		children := snap.Children(t.ID)
		if len(children) < 2 {
			continue
		}

		sorted := OrderChildren(children, src.ChildRefIDs(st.RefID))
		if slices.Equal(teamIDs(children), teamIDs(sorted)) {
			continue
		}

		ids := teamIDs(sorted)
		if err := dest.SortTeams(ctx, t.ID, ids); err != nil {
			if err := handleEntityError(ctx, stats, "Failed to sort teams", err,
				"name", t.Name, "team_ids", ids); err != nil {
				return err
			}
			continue
		}
		stats.TeamsSorted++
		ctxlog.From(ctx).Info("Sorted child teams", "name", t.Name, "team_ids", ids)
	}

	return nil
}

// OrderChildren stably sorts children by the position of their ref ID in
// desired. Children absent from desired keep their relative order at the end.
func OrderChildren(children []*model.DestinationTeam, desired []types.RefID) []*model.DestinationTeam {
	index := make(map[types.RefID]int, len(desired))
	for i, ref := range desired {
		if _, ok := index[ref]; !ok {
			index[ref] = i
		}
	}
	rank := func(t *model.DestinationTeam) int {
		if i, ok := index[t.RefID]; ok && t.RefID != "" {
			return i
		}
		return len(desired)
	}

	sorted := slices.Clone(children)
	slices.SortStableFunc(sorted, func(a, b *model.DestinationTeam) int {
		return rank(a) - rank(b)
	})
	return sorted
}

func teamIDs(teams []*model.DestinationTeam) []types.TeamID {
	ids := make([]types.TeamID, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
	}
	return ids
}
