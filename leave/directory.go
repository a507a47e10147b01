package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// DIRECTORY - Employee identity, role, joining date and allocation
// =============================================================================

// Directory answers "does this employee exist" for every other component.
type Directory struct {
	store  EmployeeStore
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger
}

func NewDirectory(store EmployeeStore, opts ...Option) *Directory {
	o := newOptions(opts)
	return &Directory{
		store:  store,
		clock:  o.clock,
		ids:    o.ids,
		logger: o.logger.Named("leave.directory"),
	}
}

// Create registers an employee. Email matching is exact.
func (d *Directory) Create(ctx context.Context, in NewEmployee) (*Employee, error) {
	if err := validateNewEmployee(in); err != nil {
		d.logger.Warn("create employee validation failed", zap.Error(err))
		return nil, err
	}

	exists, err := d.store.EmailExists(ctx, in.Email)
	if err != nil {
		d.logger.Error("create employee email check failed", zap.Error(err))
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, conflictf("email already exists")
	}

	e := &Employee{
		ID:               EmployeeID(d.ids.New()),
		Name:             strings.TrimSpace(in.Name),
		Email:            in.Email,
		Department:       strings.TrimSpace(in.Department),
		JoiningDate:      DateOf(in.JoiningDate),
		HR:               in.HR,
		AnnualAllocation: in.AnnualAllocation,
		CreatedAt:        d.clock.Now(),
	}

	if err := d.store.CreateEmployee(ctx, e); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		d.logger.Error("create employee persist failed", zap.Error(err))
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}

	d.logger.Info("create employee success",
		zap.String("employee_id", string(e.ID)),
		zap.Bool("hr", e.HR),
		zap.Int("annual_allocation", e.AnnualAllocation),
	)
	return e, nil
}

// GetOrFail returns the employee or an ErrNotFound error naming the id.
func (d *Directory) GetOrFail(ctx context.Context, id EmployeeID) (*Employee, error) {
	e, err := d.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	if e == nil {
		return nil, notFoundf("employee not found: %s", id)
	}
	return e, nil
}

func validateNewEmployee(in NewEmployee) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return invalidf("name is required")
	case strings.TrimSpace(in.Email) == "":
		return invalidf("email is required")
	case strings.TrimSpace(in.Department) == "":
		return invalidf("department is required")
	case in.JoiningDate.IsZero():
		return invalidf("joiningDate is required")
	case in.AnnualAllocation <= 0:
		return invalidf("annual allocation must be positive, got %d", in.AnnualAllocation)
	}
	return nil
}
