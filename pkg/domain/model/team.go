package model

import (
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// UnassignedTeamName is the destination's bucket for users without a team
const UnassignedTeamName = "Unassigned"

// DestinationTeam is a team as reported by the destination organization
type DestinationTeam struct {
	ID       types.TeamID
	Name     string
	ParentID types.TeamID
	RefID    types.RefID
	UserIDs  []types.UserID
	Depth    int
}

// IsRoot reports whether the team is the organization root
func (t *DestinationTeam) IsRoot() bool {
	return t.Depth == 0
}

// TeamCreate is the payload for creating a destination team
type TeamCreate struct {
	Name     string
	RefID    types.RefID
	ParentID types.TeamID
}

// TeamUpdate lists only the fields to change; nil means unchanged
type TeamUpdate struct {
	ID       types.TeamID
	Name     *string
	ParentID *types.TeamID
}

// IsEmpty reports whether the update changes nothing
func (u *TeamUpdate) IsEmpty() bool {
	return u == nil || (u.Name == nil && u.ParentID == nil)
}

// TeamSnapshot is the reconciliation view of destination teams: root and
// "Unassigned" removed, listing order preserved, indexed by ref ID.
type TeamSnapshot struct {
	RootID types.TeamID
	Teams  []*DestinationTeam
	ByRef  map[types.RefID]*DestinationTeam
}

// NewTeamSnapshot builds a snapshot from the raw destination listing.
// The listing must not contain duplicated ref IDs; see PickDuplicateTeams.
func NewTeamSnapshot(raw []*DestinationTeam) (*TeamSnapshot, error) {
	s := &TeamSnapshot{
		ByRef: make(map[types.RefID]*DestinationTeam),
	}

	for _, t := range raw {
		if t.IsRoot() {
			if s.RootID == "" {
				s.RootID = t.ID
			}
			continue
		}
		if t.Name == UnassignedTeamName {
			continue
		}
		s.Teams = append(s.Teams, t)
		if t.RefID != "" {
			if _, exists := s.ByRef[t.RefID]; exists {
				return nil, goerr.New("duplicated ref_id in destination teams",
					goerr.V("ref_id", t.RefID))
			}
			s.ByRef[t.RefID] = t
		}
	}

	if s.RootID == "" {
		return nil, goerr.Wrap(ErrRootTeamNotFound, "destination team listing has no depth 0 team",
			goerr.T(ErrTagConfig))
	}

	return s, nil
}

// Names returns the current names of all teams except the one given
func (s *TeamSnapshot) Names(except types.TeamID) []string {
	names := make([]string, 0, len(s.Teams))
	for _, t := range s.Teams {
		if t.ID == except {
			continue
		}
		names = append(names, t.Name)
	}
	return names
}

// Children returns the teams directly under parent, in listing order
func (s *TeamSnapshot) Children(parent types.TeamID) []*DestinationTeam {
	var children []*DestinationTeam
	for _, t := range s.Teams {
		if t.ParentID == parent {
			children = append(children, t)
		}
	}
	return children
}

// Add appends a newly created team to the snapshot
func (s *TeamSnapshot) Add(t *DestinationTeam) {
	s.Teams = append(s.Teams, t)
	if t.RefID != "" {
		s.ByRef[t.RefID] = t
	}
}

// PickDuplicateTeams splits raw teams sharing a ref ID into the one to keep
// and the ones to delete. The keeper has the most members; ties go to the
// smallest team ID so the choice is stable across runs.
func PickDuplicateTeams(raw []*DestinationTeam) (losers []*DestinationTeam) {
	groups := make(map[types.RefID][]*DestinationTeam)
	var order []types.RefID
	for _, t := range raw {
		if t.RefID == "" || t.IsRoot() {
			continue
		}
		if _, ok := groups[t.RefID]; !ok {
			order = append(order, t.RefID)
		}
		groups[t.RefID] = append(groups[t.RefID], t)
	}

	for _, ref := range order {
		group := groups[ref]
		if len(group) < 2 {
			continue
		}
		sorted := make([]*DestinationTeam, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			if len(sorted[i].UserIDs) != len(sorted[j].UserIDs) {
				return len(sorted[i].UserIDs) > len(sorted[j].UserIDs)
			}
			return sorted[i].ID < sorted[j].ID
		})
		losers = append(losers, sorted[1:]...)
	}

	return losers
}
