package usecase_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.With(context.Background(), logger)
}

// fakeDestination keeps an organization in memory and records every
// mutating call as a short string
type fakeDestination struct {
	mu     sync.Mutex
	users  []*model.DestinationUser
	teams  []*model.DestinationTeam
	calls  []string
	fail   map[string]error
	nextID int
}

var _ interfaces.Destination = (*fakeDestination)(nil)

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		teams: []*model.DestinationTeam{{ID: "root", Name: "Acme", Depth: 0}},
		fail:  map[string]error{},
	}
}

func (f *fakeDestination) addUser(id, name, email string, active bool, role model.Role) {
	f.users = append(f.users, &model.DestinationUser{
		ID: types.UserID(id), Name: name, Email: types.Email(email), IsActive: active, Role: role,
	})
}

func (f *fakeDestination) addTeam(id, name, parent, ref string, members ...types.UserID) {
	f.teams = append(f.teams, &model.DestinationTeam{
		ID: types.TeamID(id), Name: name, ParentID: types.TeamID(parent), RefID: types.RefID(ref),
		UserIDs: members, Depth: 1,
	})
}

func (f *fakeDestination) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	for prefix, err := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeDestination) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeDestination) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeDestination) team(id types.TeamID) *model.DestinationTeam {
	for _, t := range f.teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (f *fakeDestination) teamByRef(ref types.RefID) *model.DestinationTeam {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.teams {
		if t.RefID == ref {
			copied := *t
			return &copied
		}
	}
	return nil
}

func (f *fakeDestination) user(email string) *model.DestinationUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email.Key() == strings.ToLower(email) {
			copied := *u
			return &copied
		}
	}
	return nil
}

func (f *fakeDestination) childNames(parent types.TeamID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, t := range f.teams {
		if t.ParentID == parent && t.Depth > 0 {
			names = append(names, t.Name)
		}
	}
	return names
}

func (f *fakeDestination) ListUsers(ctx context.Context) ([]*model.DestinationUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["ListUsers"]; err != nil {
		return nil, err
	}
	users := make([]*model.DestinationUser, len(f.users))
	for i, u := range f.users {
		copied := *u
		users[i] = &copied
	}
	return users, nil
}

func (f *fakeDestination) CreateUser(ctx context.Context, user *model.UserCreate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateUser %s %s %s", user.Email, user.Language, user.Timezone); err != nil {
		return err
	}
	f.nextID++
	f.users = append(f.users, &model.DestinationUser{
		ID:          types.UserID(fmt.Sprintf("new-u%d", f.nextID)),
		Name:        user.Name,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		IsActive:    true,
		Role:        model.RoleMember,
	})
	return nil
}

func (f *fakeDestination) setActive(id types.UserID, active bool) {
	for _, u := range f.users {
		if u.ID == id {
			u.IsActive = active
		}
	}
}

func (f *fakeDestination) ActivateUser(ctx context.Context, id types.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ActivateUser %s", id); err != nil {
		return err
	}
	f.setActive(id, true)
	return nil
}

func (f *fakeDestination) DeactivateUser(ctx context.Context, id types.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeactivateUser %s", id); err != nil {
		return err
	}
	f.setActive(id, false)
	return nil
}

func (f *fakeDestination) UpdateUser(ctx context.Context, id types.UserID, patch *model.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateUser %s", id); err != nil {
		return err
	}
	for _, u := range f.users {
		if u.ID != id {
			continue
		}
		if patch.Name != nil {
			u.Name = *patch.Name
		}
		if patch.PhoneNumber != nil {
			u.PhoneNumber = *patch.PhoneNumber
		}
	}
	return nil
}

func (f *fakeDestination) ListTeams(ctx context.Context) ([]*model.DestinationTeam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["ListTeams"]; err != nil {
		return nil, err
	}
	teams := make([]*model.DestinationTeam, len(f.teams))
	for i, t := range f.teams {
		copied := *t
		copied.UserIDs = slices.Clone(t.UserIDs)
		teams[i] = &copied
	}
	return teams, nil
}

func (f *fakeDestination) nameTaken(name string, except types.TeamID) bool {
	for _, t := range f.teams {
		if t.ID != except && t.Depth > 0 && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

func (f *fakeDestination) CreateTeam(ctx context.Context, team *model.TeamCreate) (*model.DestinationTeam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateTeam %s", team.Name); err != nil {
		return nil, err
	}
	if f.nameTaken(team.Name, "") {
		return nil, goerr.New("team name already exists", goerr.T(model.ErrTagAPI))
	}
	f.nextID++
	created := &model.DestinationTeam{
		ID:       types.TeamID(fmt.Sprintf("new-t%d", f.nextID)),
		Name:     team.Name,
		ParentID: team.ParentID,
		RefID:    team.RefID,
		Depth:    1,
	}
	f.teams = append(f.teams, created)
	copied := *created
	return &copied, nil
}

func (f *fakeDestination) UpdateTeam(ctx context.Context, update *model.TeamUpdate) (*model.DestinationTeam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fields []string
	if update.Name != nil {
		fields = append(fields, "name="+*update.Name)
	}
	if update.ParentID != nil {
		fields = append(fields, "parent="+update.ParentID.String())
	}
	if err := f.record("UpdateTeam %s %s", update.ID, strings.Join(fields, " ")); err != nil {
		return nil, err
	}

	t := f.team(update.ID)
	if t == nil {
		return nil, goerr.New("team not found", goerr.T(model.ErrTagAPI), goerr.T(model.ErrTagNotFound))
	}
	if update.Name != nil {
		if f.nameTaken(*update.Name, t.ID) {
			return nil, goerr.New("team name already exists", goerr.T(model.ErrTagAPI))
		}
		t.Name = *update.Name
	}
	if update.ParentID != nil {
		t.ParentID = *update.ParentID
	}
	copied := *t
	return &copied, nil
}

func (f *fakeDestination) DeleteTeam(ctx context.Context, id types.TeamID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteTeam %s", id); err != nil {
		return err
	}
	if f.team(id) == nil {
		return goerr.New("team not found", goerr.T(model.ErrTagAPI), goerr.T(model.ErrTagNotFound))
	}
	f.teams = slices.DeleteFunc(f.teams, func(t *model.DestinationTeam) bool { return t.ID == id })
	return nil
}

func (f *fakeDestination) AddTeamMembers(ctx context.Context, id types.TeamID, userIDs []types.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddTeamMembers %s %v", id, userIDs); err != nil {
		return err
	}
	if t := f.team(id); t != nil {
		t.UserIDs = append(t.UserIDs, userIDs...)
	}
	return nil
}

func (f *fakeDestination) RemoveTeamMembers(ctx context.Context, id types.TeamID, userIDs []types.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveTeamMembers %s %v", id, userIDs); err != nil {
		return err
	}
	if t := f.team(id); t != nil {
		t.UserIDs = slices.DeleteFunc(t.UserIDs, func(u types.UserID) bool {
			return slices.Contains(userIDs, u)
		})
	}
	return nil
}

func (f *fakeDestination) SortTeams(ctx context.Context, parent types.TeamID, teamIDs []types.TeamID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SortTeams %s %v", parent, teamIDs); err != nil {
		return err
	}

	var slots []int
	for i, t := range f.teams {
		if t.ParentID == parent && t.Depth > 0 {
			slots = append(slots, i)
		}
	}
	if len(slots) != len(teamIDs) {
		return goerr.New("sort must list every child", goerr.T(model.ErrTagAPI))
	}
	ordered := make([]*model.DestinationTeam, len(teamIDs))
	for i, id := range teamIDs {
		ordered[i] = f.team(id)
	}
	for i, slot := range slots {
		f.teams[slot] = ordered[i]
	}
	return nil
}

type fakeSource struct {
	users []*model.SourceUser
	teams []*model.SourceTeam
	err   error
}

var _ interfaces.IdentitySource = (*fakeSource)(nil)

func (s *fakeSource) ListUsers(ctx context.Context) ([]*model.SourceUser, error) {
	if s.err != nil {
		return nil, s.err
	}
	users := make([]*model.SourceUser, len(s.users))
	for i, u := range s.users {
		copied := *u
		users[i] = &copied
	}
	return users, nil
}

func (s *fakeSource) ListTeams(ctx context.Context) ([]*model.SourceTeam, error) {
	if s.err != nil {
		return nil, s.err
	}
	teams := make([]*model.SourceTeam, len(s.teams))
	for i, t := range s.teams {
		copied := *t
		teams[i] = &copied
	}
	return teams, nil
}

func sourceUser(ref, name, email string) *model.SourceUser {
	return &model.SourceUser{RefID: types.RefID(ref), Name: name, Email: types.Email(email)}
}

func sourceTeam(ref, name, parent string, members ...types.RefID) *model.SourceTeam {
	return &model.SourceTeam{
		RefID:        types.RefID(ref),
		Name:         name,
		ParentRefID:  types.RefID(parent),
		MemberRefIDs: members,
	}
}
