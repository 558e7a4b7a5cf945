package source

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

const (
	ldapPageSize = 500

	defaultLDAPUserFilter  = "(&(objectClass=person)(mail=*))"
	defaultLDAPGroupFilter = "(objectClass=group)"

	ldapAttrMail        = "mail"
	ldapAttrDisplayName = "displayName"
	ldapAttrCN          = "cn"
	ldapAttrMobile      = "mobile"
	ldapAttrMember      = "member"
	ldapAttrMemberOf    = "memberOf"
)

// LDAPConfig describes how to reach and search the directory
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	UserBaseDN   string
	GroupBaseDN  string
	UserFilter   string
	GroupFilter  string
	// InsecureSkipVerify disables certificate verification for ldaps:// URLs
	InsecureSkipVerify bool
}

// LDAPSearcher is the subset of *ldap.Conn used by LDAP
type LDAPSearcher interface {
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close() error
}

// LDAPDialer opens a bound connection to the directory
type LDAPDialer func(ctx context.Context, cfg LDAPConfig) (LDAPSearcher, error)

// LDAP reads users from person entries and teams from group entries.
// Distinguished names are the ref IDs: a group's first memberOf value is its
// parent team and its member values are the user ref IDs.
type LDAP struct {
	cfg  LDAPConfig
	dial LDAPDialer
}

var _ interfaces.IdentitySource = (*LDAP)(nil)

// NewLDAP creates an LDAP source. A nil dialer uses DialLDAP.
func NewLDAP(cfg LDAPConfig, dial LDAPDialer) *LDAP {
	if cfg.UserFilter == "" {
		cfg.UserFilter = defaultLDAPUserFilter
	}
	if cfg.GroupFilter == "" {
		cfg.GroupFilter = defaultLDAPGroupFilter
	}
	if dial == nil {
		dial = DialLDAP
	}
	return &LDAP{cfg: cfg, dial: dial}
}

// DialLDAP connects to cfg.URL and binds with the configured account
func DialLDAP(ctx context.Context, cfg LDAPConfig) (LDAPSearcher, error) {
	var opts []ldap.DialOpt
	if cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true})) // #nosec G402
	}

	conn, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to dial LDAP server", goerr.V("url", cfg.URL))
	}

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			conn.Close()
			return nil, goerr.Wrap(err, "failed to bind LDAP account",
				goerr.V("url", cfg.URL),
				goerr.V("bind_dn", cfg.BindDN),
				goerr.T(model.ErrTagConfig))
		}
	}

	return &ldapConn{conn: conn}, nil
}

type ldapConn struct {
	conn *ldap.Conn
}

func (c *ldapConn) SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error) {
	return c.conn.SearchWithPaging(req, pagingSize)
}

func (c *ldapConn) Close() error {
	c.conn.Close()
	return nil
}

// ListUsers searches person entries with a mail address
func (s *LDAP) ListUsers(ctx context.Context) ([]*model.SourceUser, error) {
	entries, err := s.search(ctx, s.cfg.UserBaseDN, s.cfg.UserFilter,
		ldapAttrMail, ldapAttrDisplayName, ldapAttrCN, ldapAttrMobile)
	if err != nil {
		return nil, err
	}

	users := make([]*model.SourceUser, 0, len(entries))
	for _, e := range entries {
		mail := e.GetAttributeValue(ldapAttrMail)
		if e.DN == "" || mail == "" {
			continue
		}
		users = append(users, &model.SourceUser{
			RefID:       types.RefID(e.DN),
			Name:        ldapUserName(e),
			Email:       types.Email(mail),
			PhoneNumber: e.GetAttributeValue(ldapAttrMobile),
		})
	}

	ctxlog.From(ctx).Debug("LDAP users loaded", "count", len(users))
	return users, nil
}

// ListTeams searches group entries
func (s *LDAP) ListTeams(ctx context.Context) ([]*model.SourceTeam, error) {
	entries, err := s.search(ctx, s.cfg.GroupBaseDN, s.cfg.GroupFilter,
		ldapAttrDisplayName, ldapAttrCN, ldapAttrMember, ldapAttrMemberOf)
	if err != nil {
		return nil, err
	}

	teams := make([]*model.SourceTeam, 0, len(entries))
	for _, e := range entries {
		name := e.GetAttributeValue(ldapAttrDisplayName)
		if name == "" {
			name = e.GetAttributeValue(ldapAttrCN)
		}
		if e.DN == "" || name == "" {
			continue
		}

		var parent types.RefID
		if memberOf := e.GetAttributeValues(ldapAttrMemberOf); len(memberOf) > 0 {
			parent = types.RefID(memberOf[0])
		}

		members := e.GetAttributeValues(ldapAttrMember)
		refs := make([]types.RefID, 0, len(members))
		for _, m := range members {
			refs = append(refs, types.RefID(m))
		}

		teams = append(teams, &model.SourceTeam{
			RefID:        types.RefID(e.DN),
			Name:         name,
			ParentRefID:  parent,
			MemberRefIDs: refs,
		})
	}

	ctxlog.From(ctx).Debug("LDAP teams loaded", "count", len(teams))
	return teams, nil
}

func (s *LDAP) search(ctx context.Context, baseDN, filter string, attrs ...string) ([]*ldap.Entry, error) {
	conn, err := s.dial(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attrs,
		nil,
	)

	result, err := conn.SearchWithPaging(req, ldapPageSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search LDAP",
			goerr.V("base_dn", baseDN),
			goerr.V("filter", filter))
	}
	return result.Entries, nil
}

// ldapUserName keeps the part of displayName before the first '/', which
// directories commonly use to append a title or department.
func ldapUserName(e *ldap.Entry) string {
	name := e.GetAttributeValue(ldapAttrDisplayName)
	if name == "" {
		name = e.GetAttributeValue(ldapAttrCN)
	}
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
