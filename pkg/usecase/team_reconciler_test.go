package usecase_test

import (
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
	"github.com/secmon-lab/orgsync/pkg/usecase"
)

func newTeamFixture() *fakeDestination {
	dest := newFakeDestination()
	dest.addUser("u1", "Alice", "alice@example.com", true, model.RoleMember)
	dest.addUser("u2", "Bob", "bob@example.com", true, model.RoleMember)
	dest.addUser("u3", "Carol", "carol@example.com", true, model.RoleMember)
	return dest
}

func teamSourceUsers() []*model.SourceUser {
	return []*model.SourceUser{
		sourceUser("r1", "Alice", "alice@example.com"),
		sourceUser("r2", "Bob", "bob@example.com"),
	}
}

func reconcileTeams(t *testing.T, r *usecase.TeamReconciler, dest *fakeDestination, src *model.SourceSet) model.RunStats {
	t.Helper()
	var stats model.RunStats
	gt.NoError(t, r.Reconcile(testContext(), dest, src, &stats)).Required()
	return stats
}

func TestTeamReconcilerBuildsTree(t *testing.T) {
	dest := newTeamFixture()
	src := &model.SourceSet{
		Users: teamSourceUsers(),
		Teams: []*model.SourceTeam{
			sourceTeam("eng", "Engineering", "", "r1"),
			sourceTeam("be", "Backend", "eng", "r1", "r2"),
		},
	}
	r := usecase.NewTeamReconciler(usecase.TeamPolicy{})

	stats := reconcileTeams(t, r, dest, src)
	gt.Equal(t, dest.recorded(), []string{
		"CreateTeam Engineering",
		"CreateTeam Backend",
		"AddTeamMembers new-t1 [u1]",
		"UpdateTeam new-t2 parent=new-t1",
		"AddTeamMembers new-t2 [u1 u2]",
	})
	gt.Equal(t, stats.TeamsCreated, 2)
	gt.Equal(t, stats.TeamsUpdated, 1)
	gt.Equal(t, stats.MembersAdded, 3)

	t.Run("second run issues no calls", func(t *testing.T) {
		dest.reset()
		stats := reconcileTeams(t, r, dest, src)
		gt.Equal(t, len(dest.recorded()), 0)
		gt.Equal(t, stats.Mutations(), 0)
	})
}

func TestTeamReconcilerNameUniqueness(t *testing.T) {
	dest := newTeamFixture()
	dest.addTeam("t0", "SALES", "root", "x")
	src := &model.SourceSet{
		Users: teamSourceUsers(),
		Teams: []*model.SourceTeam{
			sourceTeam("x", "SALES", ""),
			sourceTeam("a", "Sales", ""),
			sourceTeam("b", "Sales", ""),
		},
	}
	r := usecase.NewTeamReconciler(usecase.TeamPolicy{})

	reconcileTeams(t, r, dest, src)
	gt.Equal(t, dest.recorded(), []string{
		"CreateTeam Sales (2)",
		"CreateTeam Sales (3)",
	})
	gt.Equal(t, dest.childNames("root"), []string{"SALES", "Sales (2)", "Sales (3)"})

	t.Run("suffixed names are kept on later runs", func(t *testing.T) {
		dest.reset()
		reconcileTeams(t, r, dest, src)
		gt.Equal(t, len(dest.recorded()), 0)
	})
}

func TestTeamReconcilerRename(t *testing.T) {
	dest := newTeamFixture()
	dest.addTeam("t1", "Sales", "root", "s")
	dest.addTeam("t2", "Marketing", "root", "m")
	src := &model.SourceSet{
		Teams: []*model.SourceTeam{
			sourceTeam("s", "Marketing", ""),
			sourceTeam("m", "Growth {EU}", ""),
		},
	}
	r := usecase.NewTeamReconciler(usecase.TeamPolicy{})

	reconcileTeams(t, r, dest, src)
	gt.Equal(t, dest.recorded(), []string{
		"UpdateTeam t1 name=Marketing (2)",
		"UpdateTeam t2 name=Growth _EU_",
	})
}

func TestTeamReconcilerMembership(t *testing.T) {
	dest := newTeamFixture()
	dest.addTeam("t1", "Sales", "root", "s", "u2", "u3")
	src := &model.SourceSet{
		Users: teamSourceUsers(),
		Teams: []*model.SourceTeam{
			sourceTeam("s", "Sales", "", "r1", "r2", "unknown-ref"),
		},
	}
	r := usecase.NewTeamReconciler(usecase.TeamPolicy{})

	stats := reconcileTeams(t, r, dest, src)
	gt.Equal(t, dest.recorded(), []string{
		"AddTeamMembers t1 [u1]",
		"RemoveTeamMembers t1 [u3]",
	})
	gt.Equal(t, stats.MembersAdded, 1)
	gt.Equal(t, stats.MembersRemoved, 1)
}

func TestTeamReconcilerSort(t *testing.T) {
	dest := newTeamFixture()
	dest.addTeam("p", "Parent", "root", "p")
	dest.addTeam("a", "A", "p", "a")
	dest.addTeam("b", "B", "p", "b")
	dest.addTeam("c", "C", "p", "c")
	src := &model.SourceSet{
		Teams: []*model.SourceTeam{
			sourceTeam("p", "Parent", ""),
			sourceTeam("c", "C", "p"),
			sourceTeam("a", "A", "p"),
			sourceTeam("b", "B", "p"),
		},
	}
	r := usecase.NewTeamReconciler(usecase.TeamPolicy{})

	stats := reconcileTeams(t, r, dest, src)
	gt.Equal(t, dest.recorded(), []string{"SortTeams p [c a b]"})
	gt.Equal(t, stats.TeamsSorted, 1)
	gt.Equal(t, dest.childNames("p"), []string{"C", "A", "B"})

	dest.reset()
	reconcileTeams(t, r, dest, src)
	gt.Equal(t, len(dest.recorded()), 0)
}

func TestOrderChildren(t *testing.T) {
	children := []*model.DestinationTeam{
		{ID: "A", RefID: "a"},
		{ID: "B", RefID: "b"},
		{ID: "C", RefID: "c"},
	}

	sorted := usecase.OrderChildren(children, []types.RefID{"c", "a"})
	ids := make([]types.TeamID, len(sorted))
	for i, t := range sorted {
		ids[i] = t.ID
	}
	gt.Equal(t, ids, []types.TeamID{"C", "A", "B"})

	// input is left untouched
	gt.Equal(t, children[0].ID, types.TeamID("A"))
}

func TestTeamReconcilerRemove(t *testing.T) {
	newDest := func() *fakeDestination {
		dest := newTeamFixture()
		dest.addTeam("k", "Keep", "root", "k")
		dest.addTeam("g", "Gone", "k", "g")
		dest.addTeam("n", "Manual", "root", "")
		dest.addTeam("un", model.UnassignedTeamName, "root", "")
		return dest
	}
	src := &model.SourceSet{Teams: []*model.SourceTeam{sourceTeam("k", "Keep", "")}}

	t.Run("delete", func(t *testing.T) {
		dest := newDest()
		stats := reconcileTeams(t, usecase.NewTeamReconciler(usecase.TeamPolicy{}), dest, src)
		gt.Equal(t, dest.recorded(), []string{"DeleteTeam g", "DeleteTeam n"})
		gt.Equal(t, stats.TeamsRemoved, 2)
		gt.Equal(t, dest.childNames("root"), []string{"Keep", model.UnassignedTeamName})
	})

	t.Run("404 on delete is not a failure", func(t *testing.T) {
		dest := newDest()
		dest.fail["DeleteTeam g"] = goerr.New("not found", goerr.T(model.ErrTagAPI), goerr.T(model.ErrTagNotFound))
		stats := reconcileTeams(t, usecase.NewTeamReconciler(usecase.TeamPolicy{}), dest, src)
		gt.Equal(t, stats.Failures, 0)
		gt.Equal(t, stats.TeamsRemoved, 1)
	})

	t.Run("archive", func(t *testing.T) {
		dest := newDest()
		r := usecase.NewTeamReconciler(usecase.TeamPolicy{Removal: usecase.TeamRemovalArchive})

		stats := reconcileTeams(t, r, dest, src)
		gt.Equal(t, dest.recorded(), []string{
			"UpdateTeam g name=(removed) Gone parent=root",
			"UpdateTeam n name=(removed) Manual",
		})
		gt.Equal(t, stats.TeamsRemoved, 2)

		dest.reset()
		reconcileTeams(t, r, dest, src)
		gt.Equal(t, len(dest.recorded()), 0)
	})
}

func TestTeamReconcilerDuplicateRefs(t *testing.T) {
	dest := newTeamFixture()
	dest.addTeam("d1", "Dup", "root", "d", "u1")
	dest.addTeam("d2", "Dup (2)", "root", "d", "u1", "u2")
	src := &model.SourceSet{
		Users: teamSourceUsers(),
		Teams: []*model.SourceTeam{sourceTeam("d", "Dup", "", "r1", "r2")},
	}

	stats := reconcileTeams(t, usecase.NewTeamReconciler(usecase.TeamPolicy{}), dest, src)
	gt.Equal(t, dest.recorded(), []string{"DeleteTeam d1"})
	gt.Equal(t, stats.TeamsRemoved, 1)
	gt.Equal(t, dest.teamByRef("d").ID, types.TeamID("d2"))
}

func TestTeamReconcilerFailures(t *testing.T) {
	src := &model.SourceSet{
		Users: teamSourceUsers(),
		Teams: []*model.SourceTeam{
			sourceTeam("eng", "Engineering", ""),
			sourceTeam("be", "Backend", "eng", "r1", "r2"),
		},
	}

	t.Run("failed team is skipped", func(t *testing.T) {
		dest := newTeamFixture()
		dest.fail["CreateTeam Engineering"] = goerr.New("bad request", goerr.T(model.ErrTagAPI))

		stats := reconcileTeams(t, usecase.NewTeamReconciler(usecase.TeamPolicy{}), dest, src)
		gt.Equal(t, dest.recorded(), []string{
			"CreateTeam Engineering",
			"CreateTeam Backend",
			"AddTeamMembers new-t1 [u1 u2]",
		})
		gt.Equal(t, stats.Failures, 1)
	})

	t.Run("auth failure aborts", func(t *testing.T) {
		dest := newTeamFixture()
		dest.fail["CreateTeam"] = goerr.New("unauthorized", goerr.T(model.ErrTagAuth))

		var stats model.RunStats
		err := usecase.NewTeamReconciler(usecase.TeamPolicy{}).Reconcile(testContext(), dest, src, &stats)
		gt.Error(t, err)
		gt.True(t, model.IsRunFatal(err))
		gt.Equal(t, dest.recorded(), []string{"CreateTeam Engineering"})
	})

	t.Run("listing failure aborts", func(t *testing.T) {
		dest := newTeamFixture()
		dest.fail["ListTeams"] = goerr.New("server error", goerr.T(model.ErrTagAPI))

		var stats model.RunStats
		gt.Error(t, usecase.NewTeamReconciler(usecase.TeamPolicy{}).Reconcile(testContext(), dest, src, &stats))
	})
}
