package model

import (
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// SourceUser is a normalized user record produced by an identity source
type SourceUser struct {
	RefID       types.RefID `json:"ref_id" yaml:"ref_id"`
	Name        string      `json:"name" yaml:"name"`
	Email       types.Email `json:"email" yaml:"email"`
	PhoneNumber string      `json:"phone_number" yaml:"phone_number"`
}

// SourceTeam is a normalized team record produced by an identity source.
// An empty ParentRefID attaches the team under the organization root.
type SourceTeam struct {
	RefID        types.RefID   `json:"ref_id" yaml:"ref_id"`
	Name         string        `json:"name" yaml:"name"`
	ParentRefID  types.RefID   `json:"parent_ref_id" yaml:"parent_ref_id"`
	MemberRefIDs []types.RefID `json:"member_ref_ids" yaml:"member_ref_ids"`
}

// SourceSet is the complete identity-source view used by one run
type SourceSet struct {
	Users []*SourceUser
	Teams []*SourceTeam
}

// Validate checks that ref IDs are unique among users and among teams, and
// that every team has one. Any violation is configuration-fatal. Users
// without a ref ID are left to DropUsersWithoutRefID.
func (s *SourceSet) Validate() error {
	userRefs := make([]types.RefID, 0, len(s.Users))
	for _, u := range s.Users {
		if u.RefID != "" {
			userRefs = append(userRefs, u.RefID)
		}
	}
	if dups := duplicatedRefIDs(userRefs); len(dups) > 0 {
		return goerr.New("duplicated ref_id(s) among source users",
			goerr.V("duplicates", dups),
			goerr.T(ErrTagConfig))
	}

	teamRefs := make([]types.RefID, 0, len(s.Teams))
	for _, t := range s.Teams {
		if t.RefID == "" {
			return goerr.New("source team has empty ref_id",
				goerr.V("name", t.Name),
				goerr.T(ErrTagConfig))
		}
		teamRefs = append(teamRefs, t.RefID)
	}
	if dups := duplicatedRefIDs(teamRefs); len(dups) > 0 {
		return goerr.New("duplicated ref_id(s) among source teams",
			goerr.V("duplicates", dups),
			goerr.T(ErrTagConfig))
	}

	return nil
}

// DropUsersWithoutRefID removes users with an empty ref ID and returns them.
// No team can reference such a user.
func (s *SourceSet) DropUsersWithoutRefID() []*SourceUser {
	var dropped []*SourceUser
	kept := s.Users[:0]
	for _, u := range s.Users {
		if u.RefID == "" {
			dropped = append(dropped, u)
			continue
		}
		kept = append(kept, u)
	}
	s.Users = kept
	return dropped
}

// ExcludeTeams drops teams whose ref ID is listed. Children of a dropped team
// keep their parent ref, which then fails to resolve and falls back to the root.
func (s *SourceSet) ExcludeTeams(refIDs []types.RefID) {
	if len(refIDs) == 0 {
		return
	}
	excluded := make(map[types.RefID]struct{}, len(refIDs))
	for _, id := range refIDs {
		excluded[id] = struct{}{}
	}

	kept := s.Teams[:0]
	for _, t := range s.Teams {
		if _, ok := excluded[t.RefID]; ok {
			continue
		}
		kept = append(kept, t)
	}
	s.Teams = kept
}

// UserByRefID returns a lookup of source users keyed by ref ID
func (s *SourceSet) UserByRefID() map[types.RefID]*SourceUser {
	m := make(map[types.RefID]*SourceUser, len(s.Users))
	for _, u := range s.Users {
		m[u.RefID] = u
	}
	return m
}

// ChildRefIDs returns the ref IDs of teams whose parent is parent, in source order
func (s *SourceSet) ChildRefIDs(parent types.RefID) []types.RefID {
	var children []types.RefID
	for _, t := range s.Teams {
		if t.ParentRefID == parent {
			children = append(children, t.RefID)
		}
	}
	return children
}

func duplicatedRefIDs(ids []types.RefID) []types.RefID {
	counts := make(map[types.RefID]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}

	var dups []types.RefID
	for id, n := range counts {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i] < dups[j] })
	return dups
}
