package destination

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

const (
	userListPageSize = 1000
	scimUserSchema   = "urn:ietf:params:scim:schemas:core:2.0:User"
	scimMobilePath   = `phoneNumbers[type eq "mobile"].value`
)

// Caller sends one destination API request; *Client implements it
type Caller interface {
	Call(ctx context.Context, method, target string, body, out any) error
}

// API is the typed destination API built on an authenticated Caller
type API struct {
	caller  Caller
	scimURL string
}

var _ interfaces.Destination = (*API)(nil)

// NewAPI creates an API. An empty scimURL selects DefaultSCIMURL.
func NewAPI(caller Caller, scimURL string) *API {
	if scimURL == "" {
		scimURL = DefaultSCIMURL
	}
	return &API{
		caller:  caller,
		scimURL: strings.TrimRight(scimURL, "/"),
	}
}

type userJSON struct {
	ID       string `json:"user_id"`
	Name     string `json:"user_name"`
	Email    string `json:"email"`
	Tel      string `json:"tel"`
	IsActive bool   `json:"is_active"`
	Role     int    `json:"role"`
}

func (u *userJSON) toModel() *model.DestinationUser {
	return &model.DestinationUser{
		ID:          types.UserID(u.ID),
		Name:        u.Name,
		Email:       types.Email(u.Email),
		PhoneNumber: model.NormalizePhoneNumber(u.Tel),
		IsActive:    u.IsActive,
		Role:        model.Role(u.Role),
	}
}

type teamJSON struct {
	ID        string   `json:"team_id"`
	Name      string   `json:"team_name"`
	ParentID  string   `json:"parent_id"`
	Reference string   `json:"reference"`
	Users     []string `json:"users"`
	Depth     int      `json:"depth"`
}

func (t *teamJSON) toModel() *model.DestinationTeam {
	userIDs := make([]types.UserID, len(t.Users))
	for i, id := range t.Users {
		userIDs[i] = types.UserID(id)
	}
	return &model.DestinationTeam{
		ID:       types.TeamID(t.ID),
		Name:     t.Name,
		ParentID: types.TeamID(t.ParentID),
		RefID:    types.RefID(t.Reference),
		UserIDs:  userIDs,
		Depth:    t.Depth,
	}
}

// ListUsers pages through the organization's users until an empty page
func (a *API) ListUsers(ctx context.Context) ([]*model.DestinationUser, error) {
	var users []*model.DestinationUser
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("cnt", strconv.Itoa(userListPageSize))
		q.Set("page", strconv.Itoa(page))

		var resp struct {
			Data struct {
				Users []userJSON `json:"users"`
			} `json:"data"`
		}
		if err := a.caller.Call(ctx, http.MethodGet, "/organization.user.list?"+q.Encode(), nil, &resp); err != nil {
			return nil, goerr.Wrap(err, "failed to list destination users", goerr.V("page", page))
		}
		if len(resp.Data.Users) == 0 {
			return users, nil
		}
		for i := range resp.Data.Users {
			users = append(users, resp.Data.Users[i].toModel())
		}
	}
}

// CreateUser provisions a new organization user
func (a *API) CreateUser(ctx context.Context, user *model.UserCreate) error {
	body := map[string]string{
		"user_name":  user.Name,
		"user_email": user.Email.String(),
		"language":   user.Language,
	}
	if user.Timezone != "" {
		body["timezone"] = user.Timezone
	}
	if user.PhoneNumber != "" {
		body["tel"] = user.PhoneNumber
	}
	if err := a.caller.Call(ctx, http.MethodPost, "/organization.user.create", body, nil); err != nil {
		return goerr.Wrap(err, "failed to create user", goerr.V("email", user.Email))
	}
	return nil
}

// ActivateUser reactivates a deactivated user
func (a *API) ActivateUser(ctx context.Context, id types.UserID) error {
	if err := a.caller.Call(ctx, http.MethodPost, "/organization.user.activate", map[string]string{"user_id": id.String()}, nil); err != nil {
		return goerr.Wrap(err, "failed to activate user", goerr.V("user_id", id))
	}
	return nil
}

// DeactivateUser deactivates an active user
func (a *API) DeactivateUser(ctx context.Context, id types.UserID) error {
	if err := a.caller.Call(ctx, http.MethodPost, "/organization.user.deactivate", map[string]string{"user_id": id.String()}, nil); err != nil {
		return goerr.Wrap(err, "failed to deactivate user", goerr.V("user_id", id))
	}
	return nil
}

type scimOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// UpdateUser applies a partial profile update through the SCIM endpoint
func (a *API) UpdateUser(ctx context.Context, id types.UserID, patch *model.UserPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	var ops []scimOperation
	if patch.Name != nil {
		ops = append(ops, scimOperation{Op: "Replace", Path: "displayName", Value: *patch.Name})
	}
	if patch.PhoneNumber != nil {
		ops = append(ops, scimOperation{Op: "Replace", Path: scimMobilePath, Value: *patch.PhoneNumber})
	}

	body := map[string]any{
		"schemas":    []string{scimUserSchema},
		"Operations": ops,
	}
	target := a.scimURL + "/Users/" + url.PathEscape(id.String())
	if err := a.caller.Call(ctx, http.MethodPatch, target, body, nil); err != nil {
		return goerr.Wrap(err, "failed to update user", goerr.V("user_id", id))
	}
	return nil
}

// ListTeams returns every team of the organization including the root
func (a *API) ListTeams(ctx context.Context) ([]*model.DestinationTeam, error) {
	var resp struct {
		Data struct {
			Team []teamJSON `json:"team"`
		} `json:"data"`
	}
	if err := a.caller.Call(ctx, http.MethodGet, "/user.team.list", nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to list destination teams")
	}

	teams := make([]*model.DestinationTeam, len(resp.Data.Team))
	for i := range resp.Data.Team {
		teams[i] = resp.Data.Team[i].toModel()
	}
	return teams, nil
}

type teamResponse struct {
	Data teamJSON `json:"data"`
}

// CreateTeam creates a team and returns it as the destination stored it
func (a *API) CreateTeam(ctx context.Context, team *model.TeamCreate) (*model.DestinationTeam, error) {
	body := map[string]string{
		"name":      team.Name,
		"reference": team.RefID.String(),
		"parent_id": team.ParentID.String(),
	}
	var resp teamResponse
	if err := a.caller.Call(ctx, http.MethodPost, "/team.create", body, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to create team",
			goerr.V("name", team.Name),
			goerr.V("ref_id", team.RefID))
	}
	return resp.Data.toModel(), nil
}

// UpdateTeam changes the name and/or parent of a team
func (a *API) UpdateTeam(ctx context.Context, update *model.TeamUpdate) (*model.DestinationTeam, error) {
	body := map[string]string{"id": update.ID.String()}
	if update.Name != nil {
		body["name"] = *update.Name
	}
	if update.ParentID != nil {
		body["parent_id"] = update.ParentID.String()
	}

	var resp teamResponse
	if err := a.caller.Call(ctx, http.MethodPost, "/team.update", body, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to update team", goerr.V("team_id", update.ID))
	}
	return resp.Data.toModel(), nil
}

// DeleteTeam deletes a team
func (a *API) DeleteTeam(ctx context.Context, id types.TeamID) error {
	if err := a.caller.Call(ctx, http.MethodPost, "/team.delete", map[string]string{"id": id.String()}, nil); err != nil {
		return goerr.Wrap(err, "failed to delete team", goerr.V("team_id", id))
	}
	return nil
}

type teamMembersRequest struct {
	ID      string   `json:"id"`
	UserIDs []string `json:"user_ids"`
}

func newTeamMembersRequest(id types.TeamID, userIDs []types.UserID) *teamMembersRequest {
	req := &teamMembersRequest{ID: id.String(), UserIDs: make([]string, len(userIDs))}
	for i, u := range userIDs {
		req.UserIDs[i] = u.String()
	}
	return req
}

// AddTeamMembers adds users to a team
func (a *API) AddTeamMembers(ctx context.Context, id types.TeamID, userIDs []types.UserID) error {
	if err := a.caller.Call(ctx, http.MethodPost, "/team.user.add", newTeamMembersRequest(id, userIDs), nil); err != nil {
		return goerr.Wrap(err, "failed to add team members",
			goerr.V("team_id", id),
			goerr.V("count", len(userIDs)))
	}
	return nil
}

// RemoveTeamMembers removes users from a team
func (a *API) RemoveTeamMembers(ctx context.Context, id types.TeamID, userIDs []types.UserID) error {
	if err := a.caller.Call(ctx, http.MethodPost, "/team.user.remove", newTeamMembersRequest(id, userIDs), nil); err != nil {
		return goerr.Wrap(err, "failed to remove team members",
			goerr.V("team_id", id),
			goerr.V("count", len(userIDs)))
	}
	return nil
}

// SortTeams sets the order of the direct children of parent
func (a *API) SortTeams(ctx context.Context, parent types.TeamID, teamIDs []types.TeamID) error {
	ids := make([]string, len(teamIDs))
	for i, id := range teamIDs {
		ids[i] = id.String()
	}
	body := map[string]any{
		"parent_id": parent.String(),
		"team_ids":  ids,
	}
	if err := a.caller.Call(ctx, http.MethodPost, "/team.sort", body, nil); err != nil {
		return goerr.Wrap(err, "failed to sort teams", goerr.V("parent_id", parent))
	}
	return nil
}
