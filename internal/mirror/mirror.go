// Package mirror reconciles the identity store against an external bulk
// record source. The merge is add-only and keyed by email: existing
// identities are never overwritten or deleted.
//
// Record.Password must already be a bcrypt hash. The reconciler never hashes
// on the caller's behalf; with RequireHashed set, values that do not have the
// shape of a bcrypt hash are rejected per record.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
	"github.com/example/authcore/internal/password"
)

// ErrNotHashed rejects a record whose password is not a bcrypt hash.
var ErrNotHashed = password.ErrNotHashed

// Record is one flat row of the external source.
type Record struct {
	// Row is the position in the source, used in failure reports. Zero
	// means the slice position is used.
	Row       int
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
	Status    string
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

type Failure struct {
	Row   int
	Email string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("row %d (%s): %v", f.Row, f.Email, f.Err)
}

// Report summarizes a reconcile pass.
type Report struct {
	Created  int
	Skipped  int
	Failures []Failure
}

// Identities is the part of the identity store the reconciler uses.
type Identities interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CreateHashed(ctx context.Context, in models.NewUser) (int64, error)
	ListAll(ctx context.Context) ([]models.User, error)
}

type Options struct {
	RequireHashed bool
	Logger        *slog.Logger
}

type Reconciler struct {
	ids           Identities
	requireHashed bool
	log           *slog.Logger
}

func New(ids Identities, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{ids: ids, requireHashed: opts.RequireHashed, log: logger.With("component", "mirror")}
}

// Reconcile creates an identity for every record whose email is not yet
// stored. Reconciling the same records twice creates each identity at most
// once. Per-record failures are collected in the report; the returned error
// is non-nil only when ctx ends.
func (r *Reconciler) Reconcile(ctx context.Context, records []Record) (Report, error) {
	var rep Report
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		row := rec.Row
		if row == 0 {
			row = i + 1
		}

		created, err := r.apply(ctx, rec)
		switch {
		case err != nil:
			rep.Failures = append(rep.Failures, Failure{Row: row, Email: rec.Email, Err: err})
			r.log.WarnContext(ctx, "mirror record rejected", "row", row, "error", err)
		case created:
			rep.Created++
		default:
			rep.Skipped++
		}
	}
	r.log.InfoContext(ctx, "mirror reconciled",
		"records", len(records), "created", rep.Created, "skipped", rep.Skipped, "failed", len(rep.Failures))
	return rep, nil
}

func (r *Reconciler) apply(ctx context.Context, rec Record) (bool, error) {
	email := models.NormalizeEmail(rec.Email)
	if email == "" || rec.Password == "" {
		return false, nil
	}
	if r.requireHashed && !password.LooksHashed(rec.Password) {
		return false, ErrNotHashed
	}

	_, err := r.ids.FindByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}

	_, err = r.ids.CreateHashed(ctx, models.NewUser{
		FirstName: strings.TrimSpace(rec.FirstName),
		LastName:  strings.TrimSpace(rec.LastName),
		Email:     email,
		Password:  rec.Password,
		Role:      models.Role(strings.ToLower(strings.TrimSpace(rec.Role))),
		Status:    models.Status(strings.ToLower(strings.TrimSpace(rec.Status))),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
	if errors.Is(err, apperrors.ErrDuplicateEmail) {
		// Lost a race with another writer; the identity exists.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Export writes every stored identity to w as a workbook.
func (r *Reconciler) Export(ctx context.Context, w io.Writer) (int, error) {
	users, err := r.ids.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := WriteWorkbook(w, users); err != nil {
		return 0, err
	}
	return len(users), nil
}
