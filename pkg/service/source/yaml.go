package source

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"gopkg.in/yaml.v3"
)

// YAML reads users and teams from a single YAML document:
//
//	users:
//	  - ref_id: u1
//	    name: Alice
//	    email: alice@example.com
//	    phone_number: "+81-90-0000-0000"
//	teams:
//	  - ref_id: sales
//	    name: Sales
//	    parent_ref_id: ""
//	    member_ref_ids: [u1]
type YAML struct {
	path string
}

var _ interfaces.IdentitySource = (*YAML)(nil)

type yamlDocument struct {
	Users []*model.SourceUser `yaml:"users"`
	Teams []*model.SourceTeam `yaml:"teams"`
}

// NewYAML creates a YAML source. The file is read on every call.
func NewYAML(path string) *YAML {
	return &YAML{path: path}
}

// ListUsers returns the users section
func (s *YAML) ListUsers(ctx context.Context) ([]*model.SourceUser, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Users, nil
}

// ListTeams returns the teams section
func (s *YAML) ListTeams(ctx context.Context) ([]*model.SourceTeam, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Teams, nil
}

func (s *YAML) load() (*yamlDocument, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open YAML file", goerr.V("path", s.path))
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	var doc yamlDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode YAML file",
			goerr.V("path", s.path),
			goerr.T(model.ErrTagConfig))
	}
	return &doc, nil
}
