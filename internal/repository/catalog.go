package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/autoservice-system/internal/model"
)

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, role, phone_number, tax_id, specialization)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.PhoneNumber, u.TaxID, u.Specialization,
	).Scan(&id)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, role, phone_number, tax_id, specialization, created_at
		 FROM users WHERE email = $1`,
		email,
	))
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, role, phone_number, tax_id, specialization, created_at
		 FROM users WHERE id = $1`,
		id,
	))
}

func (r *PostgresRepository) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &role,
		&u.PhoneNumber, &u.TaxID, &u.Specialization, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

// ListUsersByRole возвращает пользователей с указанной ролью.
func (r *PostgresRepository) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, first_name, last_name, role, phone_number, tax_id, specialization, created_at
		 FROM users
		 WHERE role = $1
		 ORDER BY id`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var roleStr string
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &roleStr,
			&u.PhoneNumber, &u.TaxID, &u.Specialization, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.Role(roleStr)
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// DeleteUser удаляет пользователя. Пользователь с автомобилями или назначенными
// заказами защищён внешними ключами и не удаляется.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrUserReferenced
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateVehicle регистрирует автомобиль клиента.
func (r *PostgresRepository) CreateVehicle(ctx context.Context, v model.Vehicle) (int64, error) {
	var vin *string
	if v.VIN != "" {
		vin = &v.VIN
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vehicles (make, model, vin, registration_number, owner_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		v.Make, v.Model, vin, v.RegistrationNumber, v.OwnerID,
	).Scan(&id)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrVehicleExists, v.RegistrationNumber)
		}
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("create vehicle: %w", err)
	}
	return id, nil
}

// GetVehicle возвращает автомобиль по идентификатору.
func (r *PostgresRepository) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	var v model.Vehicle
	var vin *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, make, model, vin, registration_number, owner_id FROM vehicles WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Make, &v.Model, &vin, &v.RegistrationNumber, &v.OwnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	if vin != nil {
		v.VIN = *vin
	}
	return &v, nil
}

// ListVehiclesByOwner возвращает автомобили указанного владельца.
func (r *PostgresRepository) ListVehiclesByOwner(ctx context.Context, ownerID int64) ([]model.Vehicle, error) {
	return r.listVehicles(ctx,
		`SELECT id, make, model, vin, registration_number, owner_id
		 FROM vehicles WHERE owner_id = $1 ORDER BY id`,
		ownerID,
	)
}

// ListVehicles возвращает все зарегистрированные автомобили.
func (r *PostgresRepository) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return r.listVehicles(ctx,
		`SELECT id, make, model, vin, registration_number, owner_id FROM vehicles ORDER BY id`)
}

func (r *PostgresRepository) listVehicles(ctx context.Context, query string, args ...any) ([]model.Vehicle, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []model.Vehicle
	for rows.Next() {
		var v model.Vehicle
		var vin *string
		if err := rows.Scan(&v.ID, &v.Make, &v.Model, &vin, &v.RegistrationNumber, &v.OwnerID); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		if vin != nil {
			v.VIN = *vin
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return vehicles, nil
}

// DeleteVehicle удаляет автомобиль. Автомобиль с историей заказов защищён
// внешним ключом: удаление откатывается и возвращается конфликт.
func (r *PostgresRepository) DeleteVehicle(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrVehicleHasRepairs
		}
		return fmt.Errorf("delete vehicle: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVehicleNotFound
	}
	return nil
}

// CreatePart добавляет складскую позицию запчасти.
func (r *PostgresRepository) CreatePart(ctx context.Context, p model.Part) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO parts (name, code, price_cents, stock_quantity)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		p.Name, p.Code, toCents(p.Price), p.StockQuantity,
	).Scan(&id)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrPartExists, p.Code)
		}
		return 0, fmt.Errorf("create part: %w", err)
	}
	return id, nil
}

// GetPart возвращает запчасть по идентификатору.
func (r *PostgresRepository) GetPart(ctx context.Context, id int64) (*model.Part, error) {
	var p model.Part
	var priceCents int64
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, code, price_cents, stock_quantity FROM parts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Code, &priceCents, &p.StockQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPartNotFound
		}
		return nil, fmt.Errorf("get part: %w", err)
	}
	p.Price = fromCents(priceCents)
	return &p, nil
}

// ListParts возвращает все складские позиции.
func (r *PostgresRepository) ListParts(ctx context.Context) ([]model.Part, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, code, price_cents, stock_quantity FROM parts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select parts: %w", err)
	}
	defer rows.Close()

	var parts []model.Part
	for rows.Next() {
		var p model.Part
		var priceCents int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &priceCents, &p.StockQuantity); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		p.Price = fromCents(priceCents)
		parts = append(parts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return parts, nil
}

// RestockPart изменяет остаток запчасти на delta. Отрицательная дельта,
// уводящая остаток ниже нуля, отклоняется без изменения склада.
func (r *PostgresRepository) RestockPart(ctx context.Context, id int64, delta int) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE parts SET stock_quantity = stock_quantity + $2
		 WHERE id = $1 AND stock_quantity + $2 >= 0`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("restock part: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetPart(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

// DeletePart удаляет запчасть. Запчасть с историей списаний защищена внешним ключом.
func (r *PostgresRepository) DeletePart(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM parts WHERE id = $1`, id)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrPartInUse
		}
		return fmt.Errorf("delete part: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

// CreateService добавляет услугу в прейскурант.
func (r *PostgresRepository) CreateService(ctx context.Context, s model.Service) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO services (name, base_price_cents) VALUES ($1, $2) RETURNING id`,
		s.Name, toCents(s.BasePrice),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create service: %w", err)
	}
	return id, nil
}

// UpdateService меняет название и цену услуги в прейскуранте. Правка не влияет
// на цены, уже зафиксированные в привязках к заказам.
func (r *PostgresRepository) UpdateService(ctx context.Context, s model.Service) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE services SET name = $2, base_price_cents = $3 WHERE id = $1`,
		s.ID, s.Name, toCents(s.BasePrice),
	)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// GetService возвращает услугу по идентификатору.
func (r *PostgresRepository) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var s model.Service
	var priceCents int64
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, base_price_cents FROM services WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &priceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	s.BasePrice = fromCents(priceCents)
	return &s, nil
}

// ListServices возвращает весь прейскурант.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, base_price_cents FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		var priceCents int64
		if err := rows.Scan(&s.ID, &s.Name, &priceCents); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.BasePrice = fromCents(priceCents)
		services = append(services, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return services, nil
}

// DeleteService удаляет услугу из прейскуранта. Услуга, привязанная к заказам,
// защищена внешним ключом.
func (r *PostgresRepository) DeleteService(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrServiceInUse
		}
		return fmt.Errorf("delete service: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}
