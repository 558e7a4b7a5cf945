package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/interfaces"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/utils/apperr"
)

const (
	// DefaultUserLanguage is the language given to provisioned users
	DefaultUserLanguage = "en"
	// DefaultUserTimezone is the time zone given to provisioned users
	DefaultUserTimezone = "UTC"
)

// UserPolicy toggles the optional parts of user reconciliation
type UserPolicy struct {
	// ProvisionUsers creates destination users for unmatched source users
	ProvisionUsers bool
	// ReconcileActiveStatus activates matched inactive users and deactivates
	// active users missing from the source, MASTER and ADMIN excepted
	ReconcileActiveStatus bool
	// Language is set on provisioned users
	Language string
	// Timezone is set on provisioned users
	Timezone string
}

// UserReconciler converges destination users to the source, joined by email
type UserReconciler struct {
	policy UserPolicy
}

// NewUserReconciler creates a UserReconciler
func NewUserReconciler(policy UserPolicy) *UserReconciler {
	if policy.Language == "" {
		policy.Language = DefaultUserLanguage
	}
	if policy.Timezone == "" {
		policy.Timezone = DefaultUserTimezone
	}
	return &UserReconciler{policy: policy}
}

// Reconcile updates, provisions, activates and deactivates destination users.
// Per-user failures are logged and counted; only run-fatal errors are returned.
func (r *UserReconciler) Reconcile(ctx context.Context, dest interfaces.Destination, src *model.SourceSet, stats *model.RunStats) error {
	logger := ctxlog.From(ctx)

	destUsers, err := dest.ListUsers(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list destination users")
	}

	byEmail := make(map[string]*model.DestinationUser, len(destUsers))
	for _, u := range destUsers {
		byEmail[u.Email.Key()] = u
	}

	seen := make(map[string]struct{}, len(src.Users))
	for _, su := range src.Users {
		key := su.Email.Key()
		if key == "" {
			logger.Warn("Source user has no email, skipped", "ref_id", su.RefID, "name", su.Name)
			continue
		}
		if _, dup := seen[key]; dup {
			logger.Warn("Source user shares an email with an earlier record, skipped",
				"ref_id", su.RefID, "name", su.Name, "email", su.Email)
			continue
		}
		seen[key] = struct{}{}

		du, ok := byEmail[key]
		if !ok {
			if err := r.provision(ctx, dest, su, stats); err != nil {
				return err
			}
			continue
		}

		if err := r.update(ctx, dest, su, du, stats); err != nil {
			return err
		}

		if r.policy.ReconcileActiveStatus && !du.IsActive {
			if err := dest.ActivateUser(ctx, du.ID); err != nil {
				if err := handleEntityError(ctx, stats, "Failed to activate user", err,
					"name", du.Name, "email", du.Email); err != nil {
					return err
				}
				continue
			}
			stats.UsersActivated++
			logger.Info("Activated user", "name", du.Name, "email", du.Email)
		}
	}

	if !r.policy.ReconcileActiveStatus {
		return nil
	}

	for _, du := range destUsers {
		if _, ok := seen[du.Email.Key()]; ok || !du.IsActive {
			continue
		}
		if du.Role.IsPrivileged() {
			logger.Debug("Privileged user missing from source kept active",
				"name", du.Name, "email", du.Email, "role", du.Role.String())
			continue
		}

		if err := dest.DeactivateUser(ctx, du.ID); err != nil {
			if err := handleEntityError(ctx, stats, "Failed to deactivate user", err,
				"name", du.Name, "email", du.Email); err != nil {
				return err
			}
			continue
		}
		stats.UsersDeactivated++
		logger.Info("Deactivated user", "name", du.Name, "email", du.Email)
	}

	return nil
}

func (r *UserReconciler) provision(ctx context.Context, dest interfaces.Destination, su *model.SourceUser, stats *model.RunStats) error {
	if !r.policy.ProvisionUsers {
		return nil
	}

	req := &model.UserCreate{
		Name:        model.SanitizeName(su.Name),
		Email:       su.Email,
		PhoneNumber: model.NormalizePhoneNumber(su.PhoneNumber),
		Language:    r.policy.Language,
		Timezone:    r.policy.Timezone,
	}
	if err := dest.CreateUser(ctx, req); err != nil {
		return handleEntityError(ctx, stats, "Failed to create user", err,
			"name", req.Name, "email", req.Email)
	}

	stats.UsersCreated++
	ctxlog.From(ctx).Info("Created user", "name", req.Name, "email", req.Email)
	return nil
}

func (r *UserReconciler) update(ctx context.Context, dest interfaces.Destination, su *model.SourceUser, du *model.DestinationUser, stats *model.RunStats) error {
	patch := &model.UserPatch{}

	name := model.SanitizeName(su.Name)
	if name != du.Name {
		patch.Name = &name
	}
	// An empty source phone leaves the destination phone as is
	phone := model.NormalizePhoneNumber(su.PhoneNumber)
	if phone != "" && phone != du.PhoneNumber {
		patch.PhoneNumber = &phone
	}

	if patch.IsEmpty() {
		return nil
	}

	if err := dest.UpdateUser(ctx, du.ID, patch); err != nil {
		return handleEntityError(ctx, stats, "Failed to update user", err,
			"name", du.Name, "email", du.Email)
	}

	stats.UsersUpdated++
	ctxlog.From(ctx).Info("Updated user",
		"name", du.Name,
		"email", du.Email,
		"new_name", name,
		"new_phone_number", phone,
	)
	return nil
}

// handleEntityError returns err when it must stop the run. Otherwise the
// failure is logged and counted, and nil is returned so the caller moves on.
func handleEntityError(ctx context.Context, stats *model.RunStats, msg string, err error, args ...any) error {
	if model.IsRunFatal(err) {
		return err
	}
	stats.Failures++
	apperr.Handle(ctx, msg, err, args...)
	return nil
}
