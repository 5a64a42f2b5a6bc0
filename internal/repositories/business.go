package repositories

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/sqlite"
)

type BusinessRepository struct {
	read   *sqlx.DB
	write  *sql.DB
	logger *slog.Logger
}

func NewBusinessRepository(dbs *sqlite.Database, logger *slog.Logger) *BusinessRepository {
	return &BusinessRepository{
		read:   sqlx.NewDb(dbs.ReadOnly, "sqlite3"),
		write:  dbs.ReadWrite,
		logger: logger.With("source", "BusinessRepository"),
	}
}

func (r *BusinessRepository) Create(ctx context.Context, name string) (models.Business, error) {
	business := models.Business{
		ID:   uuid.NewString(),
		Name: name,
	}
	stmt := `INSERT INTO businesses (id, name) VALUES (?, ?)`
	if _, err := r.write.ExecContext(ctx, stmt, business.ID, business.Name); err != nil {
		return models.Business{}, errors.Wrap(err, "insert business")
	}
	return business, nil
}

func (r *BusinessRepository) Get(ctx context.Context, businessID string) (models.Business, error) {
	var business models.Business
	stmt := `SELECT id, name FROM businesses WHERE id = ?`
	if err := r.read.GetContext(ctx, &business, stmt, businessID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Business{}, errors.Wrap(ErrNotFound, "business not found",
				slog.String("business_id", businessID))
		}
		return models.Business{}, errors.Wrap(err, "read business")
	}
	return business, nil
}

func (r *BusinessRepository) CreateEmployee(
	ctx context.Context,
	businessID string,
	email string,
	bio string,
) (models.Employee, error) {
	employee := models.Employee{
		ID:         uuid.NewString(),
		Email:      email,
		Bio:        bio,
		BusinessID: businessID,
	}
	stmt := `INSERT INTO employees (id, email, bio, business_id) VALUES (?, ?, ?, ?)`
	if _, err := r.write.ExecContext(ctx, stmt,
		employee.ID, employee.Email, employee.Bio, employee.BusinessID); err != nil {
		return models.Employee{}, errors.Wrap(err, "insert employee", slog.String("email", email))
	}
	return employee, nil
}

func (r *BusinessRepository) Employee(ctx context.Context, employeeID string) (models.Employee, error) {
	var employee models.Employee
	stmt := `SELECT id, email, bio, business_id FROM employees WHERE id = ?`
	if err := r.read.GetContext(ctx, &employee, stmt, employeeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Employee{}, errors.Wrap(ErrNotFound, "employee not found",
				slog.String("employee_id", employeeID))
		}
		return models.Employee{}, errors.Wrap(err, "read employee")
	}
	return employee, nil
}

func (r *BusinessRepository) Employees(ctx context.Context, businessID string) ([]models.Employee, error) {
	var employees []models.Employee
	stmt := `SELECT id, email, bio, business_id FROM employees WHERE business_id = ? ORDER BY email`
	if err := r.read.SelectContext(ctx, &employees, stmt, businessID); err != nil {
		return nil, errors.Wrap(err, "read employees")
	}
	return employees, nil
}

// CreateScriptedQuestion authors a scripted question at the given position.
// Scripted questions are immutable once an interview references them.
func (r *BusinessRepository) CreateScriptedQuestion(
	ctx context.Context,
	businessID string,
	content string,
	orderIndex int64,
) (models.Question, error) {
	question := models.Question{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Content:    content,
		OrderIndex: orderIndex,
	}
	stmt := `INSERT INTO questions (id, business_id, content, is_follow_up, order_index) VALUES (?, ?, ?, 0, ?)`
	if _, err := r.write.ExecContext(ctx, stmt,
		question.ID, question.BusinessID, question.Content, question.OrderIndex); err != nil {
		return models.Question{}, errors.Wrap(err, "insert scripted question")
	}
	return question, nil
}
