package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/autoservice-system/internal/model"
)

// CreateOrder создаёт ремонтный заказ и привязывает услуги из прейскуранта.
// Цена каждой услуги фиксируется в привязке на момент создания.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.RepairOrder, serviceIDs []int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var mechanicID *int64
	if order.MechanicID != nil && *order.MechanicID != 0 {
		mechanicID = order.MechanicID
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO repair_orders (description, status, start_date, vehicle_id, mechanic_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		order.Description, string(order.Status), order.StartDate, order.VehicleID, mechanicID,
	).Scan(&id)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return 0, ErrVehicleNotFound
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	if err := attachServices(ctx, tx, id, serviceIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// isTerminalNoop сообщает, что патч завершённого заказа лишь повторяет его
// текущий статус и не меняет других полей. Такой патч применяется как no-op.
func isTerminalNoop(status model.OrderStatus, patch model.OrderPatch) bool {
	return patch.Status != nil && *patch.Status == status &&
		patch.Description == nil && patch.StartDate == nil &&
		patch.MechanicID == nil && patch.ServiceIDs == nil
}

// dedupeIDs убирает повторы идентификаторов, сохраняя порядок первого вхождения.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// attachServices привязывает услуги к заказу, фиксируя текущую цену прейскуранта.
func attachServices(ctx context.Context, tx pgx.Tx, orderID int64, serviceIDs []int64) error {
	for _, serviceID := range dedupeIDs(serviceIDs) {
		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO repair_services (repair_id, service_id, base_price_cents)
			 SELECT $1, id, base_price_cents FROM services WHERE id = $2`,
			orderID, serviceID,
		)
		if err != nil {
			return fmt.Errorf("attach service: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", ErrServiceNotFound, serviceID)
		}
	}
	return nil
}

// lockOrder блокирует строку заказа и возвращает его текущий статус.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (model.OrderStatus, error) {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM repair_orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("lock order: %w", err)
	}
	return model.OrderStatus(status), nil
}

// AssignMechanic назначает механика на заказ. Заказ в статусе SUBMITTED
// автоматически переводится в ACCEPTED. Повторное назначение того же
// механика безопасно.
func (r *PostgresRepository) AssignMechanic(ctx context.Context, orderID, mechanicID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			return ErrOrderCompleted
		}

		_, err = tx.Exec(ctx,
			`UPDATE repair_orders
			 SET mechanic_id = $2,
			     status = CASE WHEN status = $3 THEN $4 ELSE status END
			 WHERE id = $1`,
			orderID, mechanicID, string(model.OrderStatusSubmitted), string(model.OrderStatusAccepted),
		)
		if err != nil {
			if isPgError(err, pgerrcode.ForeignKeyViolation) {
				return ErrUserNotFound
			}
			return fmt.Errorf("assign mechanic: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ConsumePart атомарно списывает запчасть со склада в заказ. Проверка остатка
// и декремент выполняются одним условным UPDATE, поэтому два конкурирующих
// списания не могут вместе превысить остаток. Цена фиксируется в записи
// списания на момент операции. При нехватке остатка или неизвестной запчасти
// заказ и склад не меняются.
func (r *PostgresRepository) ConsumePart(ctx context.Context, orderID, partID int64, quantity int) (model.ConsumedPart, error) {
	var record model.ConsumedPart

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			return ErrOrderCompleted
		}

		var partName string
		var priceCents int64
		err = tx.QueryRow(ctx,
			`UPDATE parts SET stock_quantity = stock_quantity - $2
			 WHERE id = $1 AND stock_quantity >= $2
			 RETURNING name, price_cents`,
			partID, quantity,
		).Scan(&partName, &priceCents)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if scanErr := tx.QueryRow(ctx,
					`SELECT EXISTS (SELECT 1 FROM parts WHERE id = $1)`, partID,
				).Scan(&exists); scanErr != nil {
					return fmt.Errorf("check part: %w", scanErr)
				}
				if !exists {
					return ErrPartNotFound
				}
				return ErrInsufficientStock
			}
			return fmt.Errorf("decrement stock: %w", err)
		}

		var recordID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO consumed_parts (repair_id, part_id, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			orderID, partID, quantity, priceCents,
		).Scan(&recordID)
		if err != nil {
			return fmt.Errorf("insert consumed part: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		record = model.ConsumedPart{
			ID:        recordID,
			PartID:    partID,
			PartName:  partName,
			Quantity:  quantity,
			UnitPrice: fromCents(priceCents),
		}
		return nil
	})

	return record, err
}

// ReportMissingPart переводит заказ в AWAITING_PARTS и добавляет в заметки
// механика строку с отметкой времени. Склад не меняется.
func (r *PostgresRepository) ReportMissingPart(ctx context.Context, orderID, partID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			return ErrOrderCompleted
		}
		if !model.CanTransition(status, model.OrderStatusAwaitingParts) {
			return ErrInvalidStatusTransition
		}

		var partName string
		err = tx.QueryRow(ctx, `SELECT name FROM parts WHERE id = $1`, partID).Scan(&partName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPartNotFound
			}
			return fmt.Errorf("get part: %w", err)
		}

		note := fmt.Sprintf("[%s] missing part '%s'", time.Now().Format("2006-01-02 15:04"), partName)

		_, err = tx.Exec(ctx,
			`UPDATE repair_orders
			 SET status = $2,
			     mechanic_notes = CASE WHEN mechanic_notes = '' THEN $3
			                           ELSE mechanic_notes || E'\n' || $3 END
			 WHERE id = $1`,
			orderID, string(model.OrderStatusAwaitingParts), note,
		)
		if err != nil {
			return fmt.Errorf("report missing part: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// AppendMechanicNotes дописывает заметку механика в конец журнала заказа.
// Заметки только накапливаются, прежние записи не перезаписываются.
func (r *PostgresRepository) AppendMechanicNotes(ctx context.Context, orderID int64, note string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			return ErrOrderCompleted
		}

		_, err = tx.Exec(ctx,
			`UPDATE repair_orders
			 SET mechanic_notes = CASE WHEN mechanic_notes = '' THEN $2
			                           ELSE mechanic_notes || E'\n' || $2 END
			 WHERE id = $1`,
			orderID, note,
		)
		if err != nil {
			return fmt.Errorf("append notes: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// CompleteOrder переводит заказ в терминальный статус DONE и ставит отметку
// времени завершения. Повторный вызов идемпотентен: статус остаётся DONE,
// отметка времени намеренно перезаписывается.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, orderID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := lockOrder(ctx, tx, orderID); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE repair_orders SET status = $2, end_date = now() WHERE id = $1`,
			orderID, string(model.OrderStatusDone),
		)
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// UpdateOrder применяет частичное обновление заказа. Строка заказа блокируется
// на время транзакции, обновляются только поля, заданные в патче, поэтому
// конкурирующие правки не затирают чужие поля. Любая ошибка валидации
// откатывает все изменения патча целиком.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, orderID int64, patch model.OrderPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		status, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status.IsTerminal() {
			// Повтор текущего статуса без других изменений идемпотентен.
			if isTerminalNoop(status, patch) {
				return nil
			}
			return ErrOrderCompleted
		}

		setClauses := make([]string, 0, 5)
		args := []any{orderID}

		addArg := func(clause string, v any) {
			args = append(args, v)
			setClauses = append(setClauses, fmt.Sprintf(clause, len(args)))
		}

		if patch.Description != nil {
			addArg("description = $%d", *patch.Description)
		}
		if patch.StartDate != nil {
			addArg("start_date = $%d", *patch.StartDate)
		}
		if patch.Status != nil {
			if !model.CanTransition(status, *patch.Status) {
				return ErrInvalidStatusTransition
			}
			addArg("status = $%d", string(*patch.Status))
			if patch.Status.IsTerminal() {
				setClauses = append(setClauses, "end_date = now()")
			}
		}
		if patch.MechanicID != nil {
			if *patch.MechanicID == 0 {
				setClauses = append(setClauses, "mechanic_id = NULL")
			} else {
				addArg("mechanic_id = $%d", *patch.MechanicID)
				// Назначение механика из статуса SUBMITTED переводит заказ в работу,
				// если патч не задаёт статус явно.
				if patch.Status == nil && status == model.OrderStatusSubmitted {
					addArg("status = $%d", string(model.OrderStatusAccepted))
				}
			}
		}

		if len(setClauses) > 0 {
			query := "UPDATE repair_orders SET " + strings.Join(setClauses, ", ") + " WHERE id = $1"
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				if isPgError(err, pgerrcode.ForeignKeyViolation) {
					return ErrUserNotFound
				}
				return fmt.Errorf("update order: %w", err)
			}
		}

		if patch.ServiceIDs != nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM repair_services WHERE repair_id = $1`, orderID,
			); err != nil {
				return fmt.Errorf("detach services: %w", err)
			}
			if err := attachServices(ctx, tx, orderID, *patch.ServiceIDs); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// DeleteOrder удаляет заказ вместе с привязками услуг. Заказ со списанными
// запчастями защищён внешним ключом: финансовая история не удаляется.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM repair_services WHERE repair_id = $1`, orderID,
	); err != nil {
		return fmt.Errorf("detach services: %w", err)
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM repair_orders WHERE id = $1`, orderID)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrOrderHasParts
		}
		return fmt.Errorf("delete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetOrder возвращает заказ со списанными запчастями и привязанными услугами.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID int64) (*model.RepairOrder, error) {
	orders, err := r.listOrders(ctx,
		`SELECT id, description, mechanic_notes, status, start_date, end_date, vehicle_id, mechanic_id
		 FROM repair_orders WHERE id = $1`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

// ListOrders возвращает все заказы с составом работ, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.RepairOrder, error) {
	return r.listOrders(ctx,
		`SELECT id, description, mechanic_notes, status, start_date, end_date, vehicle_id, mechanic_id
		 FROM repair_orders ORDER BY start_date DESC, id DESC`)
}

// ListOrdersByMechanic возвращает заказы, назначенные указанному механику.
func (r *PostgresRepository) ListOrdersByMechanic(ctx context.Context, mechanicID int64) ([]model.RepairOrder, error) {
	return r.listOrders(ctx,
		`SELECT id, description, mechanic_notes, status, start_date, end_date, vehicle_id, mechanic_id
		 FROM repair_orders WHERE mechanic_id = $1 ORDER BY start_date DESC, id DESC`,
		mechanicID,
	)
}

// ListOrdersByOwner возвращает заказы по автомобилям указанного владельца,
// опционально только завершённые (для истории ремонтов).
func (r *PostgresRepository) ListOrdersByOwner(ctx context.Context, ownerID int64, doneOnly bool) ([]model.RepairOrder, error) {
	query := `SELECT ro.id, ro.description, ro.mechanic_notes, ro.status, ro.start_date, ro.end_date, ro.vehicle_id, ro.mechanic_id
		 FROM repair_orders ro
		 JOIN vehicles v ON v.id = ro.vehicle_id
		 WHERE v.owner_id = $1`
	if doneOnly {
		query += ` AND ro.status = $2 ORDER BY ro.end_date DESC`
		return r.listOrders(ctx, query, ownerID, string(model.OrderStatusDone))
	}
	query += ` ORDER BY ro.start_date DESC, ro.id DESC`
	return r.listOrders(ctx, query, ownerID)
}

// ListCompletedOrders возвращает все завершённые заказы с составом работ,
// упорядоченные по идентификатору. Используется отчётным агрегатором.
func (r *PostgresRepository) ListCompletedOrders(ctx context.Context) ([]model.RepairOrder, error) {
	return r.listOrders(ctx,
		`SELECT id, description, mechanic_notes, status, start_date, end_date, vehicle_id, mechanic_id
		 FROM repair_orders WHERE status = $1 ORDER BY id`,
		string(model.OrderStatusDone),
	)
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]model.RepairOrder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.RepairOrder
	for rows.Next() {
		var o model.RepairOrder
		var status string
		if err := rows.Scan(&o.ID, &o.Description, &o.MechanicNotes, &status,
			&o.StartDate, &o.EndDate, &o.VehicleID, &o.MechanicID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		o.Parts = []model.ConsumedPart{}
		o.Services = []model.AttachedService{}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := r.loadOrderItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// loadOrderItems догружает списанные запчасти и привязанные услуги для набора заказов.
func (r *PostgresRepository) loadOrderItems(ctx context.Context, orders []model.RepairOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]*model.RepairOrder, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		index[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx,
		`SELECT cp.repair_id, cp.id, cp.part_id, p.name, cp.quantity, cp.unit_price_cents
		 FROM consumed_parts cp
		 JOIN parts p ON p.id = cp.part_id
		 WHERE cp.repair_id = ANY($1)
		 ORDER BY cp.id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select consumed parts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var repairID int64
		var cp model.ConsumedPart
		var priceCents int64
		if err := rows.Scan(&repairID, &cp.ID, &cp.PartID, &cp.PartName, &cp.Quantity, &priceCents); err != nil {
			return fmt.Errorf("scan consumed part: %w", err)
		}
		cp.UnitPrice = fromCents(priceCents)
		index[repairID].Parts = append(index[repairID].Parts, cp)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	svcRows, err := r.pool.Query(ctx,
		`SELECT rs.repair_id, rs.service_id, s.name, rs.base_price_cents
		 FROM repair_services rs
		 JOIN services s ON s.id = rs.service_id
		 WHERE rs.repair_id = ANY($1)
		 ORDER BY rs.service_id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select attached services: %w", err)
	}
	defer svcRows.Close()

	for svcRows.Next() {
		var repairID int64
		var as model.AttachedService
		var priceCents int64
		if err := svcRows.Scan(&repairID, &as.ServiceID, &as.Name, &priceCents); err != nil {
			return fmt.Errorf("scan attached service: %w", err)
		}
		as.BasePrice = fromCents(priceCents)
		index[repairID].Services = append(index[repairID].Services, as)
	}
	if err := svcRows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}
