package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// Column names of the CSV export
const (
	csvUserRefID       = "ref_id"
	csvUserName        = "name"
	csvUserEmail       = "email"
	csvUserPhoneNumber = "phone_number"

	csvTeamRefID      = "obj_id"
	csvTeamName       = "name"
	csvTeamParentID   = "parent_id"
	csvTeamUserRefIDs = "user_ref_ids"
)

// CSV reads users and teams from two CSV files with header rows.
// Team members are a comma separated list of user ref IDs in one cell.
type CSV struct {
	usersPath string
	teamsPath string
}

var _ interfaces.IdentitySource = (*CSV)(nil)

// NewCSV creates a CSV source. Files are read on every call.
func NewCSV(usersPath, teamsPath string) *CSV {
	return &CSV{usersPath: usersPath, teamsPath: teamsPath}
}

// ListUsers reads the users file
func (s *CSV) ListUsers(ctx context.Context) ([]*model.SourceUser, error) {
	rows, err := readCSVFile(s.usersPath, csvUserRefID, csvUserName, csvUserEmail, csvUserPhoneNumber)
	if err != nil {
		return nil, err
	}

	users := make([]*model.SourceUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, &model.SourceUser{
			RefID:       types.RefID(row[csvUserRefID]),
			Name:        row[csvUserName],
			Email:       types.Email(row[csvUserEmail]),
			PhoneNumber: row[csvUserPhoneNumber],
		})
	}
	return users, nil
}

// ListTeams reads the teams file
func (s *CSV) ListTeams(ctx context.Context) ([]*model.SourceTeam, error) {
	rows, err := readCSVFile(s.teamsPath, csvTeamRefID, csvTeamName, csvTeamParentID, csvTeamUserRefIDs)
	if err != nil {
		return nil, err
	}

	teams := make([]*model.SourceTeam, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, &model.SourceTeam{
			RefID:        types.RefID(row[csvTeamRefID]),
			Name:         row[csvTeamName],
			ParentRefID:  types.RefID(row[csvTeamParentID]),
			MemberRefIDs: splitRefIDs(row[csvTeamUserRefIDs]),
		})
	}
	return teams, nil
}

func readCSVFile(path string, required ...string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open CSV file", goerr.V("path", path))
	}
	defer f.Close()

	rows, err := readCSV(f, required...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read CSV file", goerr.V("path", path))
	}
	return rows, nil
}

func readCSV(r io.Reader, required ...string) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, goerr.New("CSV has no header row", goerr.T(model.ErrTagConfig))
		}
		return nil, goerr.Wrap(err, "failed to read CSV header", goerr.T(model.ErrTagConfig))
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, goerr.New("CSV is missing a required column",
				goerr.V("column", name),
				goerr.V("header", header),
				goerr.T(model.ErrTagConfig))
		}
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read CSV record", goerr.T(model.ErrTagConfig))
		}

		row := make(map[string]string, len(header))
		for name, i := range index {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func splitRefIDs(s string) []types.RefID {
	var ids []types.RefID
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, types.RefID(part))
		}
	}
	return ids
}
