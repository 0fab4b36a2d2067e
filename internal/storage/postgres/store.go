// Package postgres 基于 pgx 的 PostgreSQL 存储实现
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/charging-platform/central-system/internal/config"
	"github.com/charging-platform/central-system/internal/storage"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Store PostgreSQL 存储
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Connect 建立连接池
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStore 使用已有连接池创建存储
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate 创建表结构
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return storage.WrapError("migrate", err)
	}
	return nil
}

// UpsertChargePoint 注册或更新充电桩
func (s *Store) UpsertChargePoint(ctx context.Context, id, endpoint, protocolVersion string, device storage.DeviceInfo, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		insert into charge_points (id, endpoint, protocol_version, registration_status, vendor, model,
			charge_point_serial_number, charge_box_serial_number, firmware_version, iccid, imsi,
			meter_type, meter_serial_number, registered_at, last_heartbeat)
		values ($1,$2,$3,'Accepted',$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		on conflict (id) do update set
			endpoint=excluded.endpoint,
			protocol_version=excluded.protocol_version,
			registration_status='Accepted',
			vendor=excluded.vendor,
			model=excluded.model,
			charge_point_serial_number=excluded.charge_point_serial_number,
			charge_box_serial_number=excluded.charge_box_serial_number,
			firmware_version=excluded.firmware_version,
			iccid=excluded.iccid,
			imsi=excluded.imsi,
			meter_type=excluded.meter_type,
			meter_serial_number=excluded.meter_serial_number,
			last_heartbeat=excluded.last_heartbeat
	`, id, endpoint, protocolVersion, device.Vendor, device.Model,
		device.ChargePointSerialNumber, device.ChargeBoxSerialNumber, device.FirmwareVersion,
		device.Iccid, device.Imsi, device.MeterType, device.MeterSerialNumber, now)
	if err != nil {
		return false, storage.WrapError("upsert charge point", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateHeartbeat 更新最后心跳时间
func (s *Store) UpdateHeartbeat(ctx context.Context, id string, now time.Time) error {
	return s.updateChargePoint(ctx, "update heartbeat", `update charge_points set last_heartbeat=$2 where id=$1`, id, now)
}

// UpdateFirmwareStatus 更新固件状态
func (s *Store) UpdateFirmwareStatus(ctx context.Context, id, status string) error {
	return s.updateChargePoint(ctx, "update firmware status", `update charge_points set firmware_status=$2 where id=$1`, id, status)
}

// UpdateDiagnosticsStatus 更新诊断状态
func (s *Store) UpdateDiagnosticsStatus(ctx context.Context, id, status string) error {
	return s.updateChargePoint(ctx, "update diagnostics status", `update charge_points set diagnostics_status=$2 where id=$1`, id, status)
}

func (s *Store) updateChargePoint(ctx context.Context, op, sql string, id string, value interface{}) error {
	tag, err := s.pool.Exec(ctx, sql, id, value)
	if err != nil {
		return storage.WrapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ChargePointEndpoint 查询回调地址
func (s *Store) ChargePointEndpoint(ctx context.Context, id string) (string, bool, error) {
	var endpoint string
	err := s.pool.QueryRow(ctx, `select endpoint from charge_points where id=$1`, id).Scan(&endpoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, storage.WrapError("charge point endpoint", err)
	}
	if endpoint == "" {
		return "", false, nil
	}
	return endpoint, true, nil
}

// GetChargePoint 查询充电桩
func (s *Store) GetChargePoint(ctx context.Context, id string) (*storage.ChargePoint, error) {
	row := s.pool.QueryRow(ctx, `
		select id, endpoint, protocol_version, registration_status, vendor, model,
			charge_point_serial_number, charge_box_serial_number, firmware_version, iccid, imsi,
			meter_type, meter_serial_number, registered_at, last_heartbeat, firmware_status, diagnostics_status
		from charge_points where id=$1
	`, id)

	var cp storage.ChargePoint
	d := &cp.Device
	if err := row.Scan(&cp.ID, &cp.Endpoint, &cp.ProtocolVersion, &cp.RegistrationStatus, &d.Vendor, &d.Model,
		&d.ChargePointSerialNumber, &d.ChargeBoxSerialNumber, &d.FirmwareVersion, &d.Iccid, &d.Imsi,
		&d.MeterType, &d.MeterSerialNumber, &cp.RegisteredAt, &cp.LastHeartbeat, &cp.FirmwareStatus, &cp.DiagnosticsStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.WrapError("get charge point", err)
	}
	return &cp, nil
}

// GetIdTagRecord 查询授权标签
func (s *Store) GetIdTagRecord(ctx context.Context, idTag string) (*storage.IdTagRecord, error) {
	var rec storage.IdTagRecord
	err := s.pool.QueryRow(ctx, `
		select id_tag, parent_id_tag, expiry_date, blocked, in_transaction
		from id_tags where id_tag=$1
	`, idTag).Scan(&rec.IdTag, &rec.ParentIdTag, &rec.ExpiryDate, &rec.Blocked, &rec.InTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.WrapError("get id tag", err)
	}
	return &rec, nil
}

// UpsertIdTag 新增或更新授权标签，不修改交易中标记
func (s *Store) UpsertIdTag(ctx context.Context, record storage.IdTagRecord) error {
	_, err := s.pool.Exec(ctx, `
		insert into id_tags (id_tag, parent_id_tag, expiry_date, blocked, in_transaction)
		values ($1,$2,$3,$4,$5)
		on conflict (id_tag) do update set
			parent_id_tag=excluded.parent_id_tag,
			expiry_date=excluded.expiry_date,
			blocked=excluded.blocked
	`, record.IdTag, record.ParentIdTag, record.ExpiryDate, record.Blocked, record.InTransaction)
	return storage.WrapError("upsert id tag", err)
}

// InsertTransaction 创建交易并标记标签为交易中
func (s *Store) InsertTransaction(ctx context.Context, chargePointID string, connectorID int, idTag string, startTs time.Time, startMeter int, reservationID *int) (int, error) {
	var id int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			insert into transactions (charge_point_id, connector_id, id_tag, start_timestamp, start_meter, reservation_id)
			values ($1,$2,$3,$4,$5,$6)
			returning id
		`, chargePointID, connectorID, idTag, startTs, startMeter, reservationID).Scan(&id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `update id_tags set in_transaction=true where id_tag=$1`, idTag)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrConnectorOccupied
		}
		return 0, storage.WrapError("insert transaction", err)
	}
	return id, nil
}

// CloseTransaction 写入停止字段，已结束的交易返回 ErrTransactionClosed
func (s *Store) CloseTransaction(ctx context.Context, transactionID int, stopTs time.Time, stopMeter int) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var idTag string
		err := tx.QueryRow(ctx, `
			update transactions set stop_timestamp=$2, stop_meter=$3
			where id=$1 and stop_timestamp is null
			returning id_tag
		`, transactionID, stopTs, stopMeter).Scan(&idTag)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `select exists(select 1 from transactions where id=$1)`, transactionID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return storage.ErrTransactionClosed
			}
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `update id_tags set in_transaction=false where id_tag=$1`, idTag)
		return err
	})
	return storage.WrapError("close transaction", err)
}

// GetTransaction 查询交易
func (s *Store) GetTransaction(ctx context.Context, transactionID int) (*storage.Transaction, error) {
	var t storage.Transaction
	err := s.pool.QueryRow(ctx, `
		select id, charge_point_id, connector_id, id_tag, start_timestamp, start_meter, reservation_id, stop_timestamp, stop_meter
		from transactions where id=$1
	`, transactionID).Scan(&t.ID, &t.ChargePointID, &t.ConnectorID, &t.IdTag, &t.StartTimestamp, &t.StartMeter, &t.ReservationID, &t.StopTimestamp, &t.StopMeter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.WrapError("get transaction", err)
	}
	return &t, nil
}

// ConnectorForTransaction 查询交易所属连接器
func (s *Store) ConnectorForTransaction(ctx context.Context, transactionID int) (int, string, bool, error) {
	var connectorID int
	var chargePointID string
	err := s.pool.QueryRow(ctx, `select connector_id, charge_point_id from transactions where id=$1`, transactionID).Scan(&connectorID, &chargePointID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", false, nil
		}
		return 0, "", false, storage.WrapError("connector for transaction", err)
	}
	return connectorID, chargePointID, true, nil
}

// AppendMeterSamples 批量追加电表采样
func (s *Store) AppendMeterSamples(ctx context.Context, chargePointID string, connectorID int, transactionID *int, samples []storage.MeterSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range samples {
		batch.Queue(`
			insert into meter_samples (charge_point_id, connector_id, transaction_id, ts, value, context, format, measurand, phase, location, unit)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, chargePointID, connectorID, transactionID, m.Timestamp, m.Value, m.Context, m.Format, m.Measurand, m.Phase, m.Location, m.Unit)
	}
	return storage.WrapError("append meter samples", s.pool.SendBatch(ctx, batch).Close())
}

// UpsertConnectorStatus 写入连接器最新状态
func (s *Store) UpsertConnectorStatus(ctx context.Context, st storage.ConnectorStatus) error {
	_, err := s.pool.Exec(ctx, `
		insert into connector_status (charge_point_id, connector_id, status, error_code, info, vendor_id, vendor_error_code, ts)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (charge_point_id, connector_id) do update set
			status=excluded.status,
			error_code=excluded.error_code,
			info=excluded.info,
			vendor_id=excluded.vendor_id,
			vendor_error_code=excluded.vendor_error_code,
			ts=excluded.ts
	`, st.ChargePointID, st.ConnectorID, st.Status, st.ErrorCode, st.Info, st.VendorID, st.VendorErrorCode, st.Timestamp)
	return storage.WrapError("upsert connector status", err)
}

// BookReservation 创建 Pending 预约
func (s *Store) BookReservation(ctx context.Context, idTag, chargePointID string, connectorID *int, expiry time.Time, parentIdTag *string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx, `
		insert into reservations (id_tag, charge_point_id, connector_id, parent_id_tag, expiry_date, status)
		values ($1,$2,$3,$4,$5,$6)
		returning id
	`, idTag, chargePointID, connectorID, parentIdTag, expiry, string(storage.ReservationPending)).Scan(&id)
	if err != nil {
		return 0, storage.WrapError("book reservation", err)
	}
	return id, nil
}

// AcceptReservation 标记预约为 Accepted
func (s *Store) AcceptReservation(ctx context.Context, reservationID int) error {
	return s.setReservationStatus(ctx, "accept reservation", reservationID, storage.ReservationAccepted)
}

// CancelReservation 取消预约
func (s *Store) CancelReservation(ctx context.Context, reservationID int) error {
	return s.setReservationStatus(ctx, "cancel reservation", reservationID, storage.ReservationCancelled)
}

func (s *Store) setReservationStatus(ctx context.Context, op string, reservationID int, status storage.ReservationStatus) error {
	tag, err := s.pool.Exec(ctx, `update reservations set status=$2 where id=$1`, reservationID, string(status))
	if err != nil {
		return storage.WrapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetReservation 查询预约
func (s *Store) GetReservation(ctx context.Context, reservationID int) (*storage.Reservation, error) {
	var r storage.Reservation
	var status string
	err := s.pool.QueryRow(ctx, `
		select id, id_tag, charge_point_id, connector_id, parent_id_tag, expiry_date, status
		from reservations where id=$1
	`, reservationID).Scan(&r.ID, &r.IdTag, &r.ChargePointID, &r.ConnectorID, &r.ParentIdTag, &r.ExpiryDate, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.WrapError("get reservation", err)
	}
	r.Status = storage.ReservationStatus(status)
	return &r, nil
}

// CurrentLocalListEntries 本地列表数据源，filter 为空时返回全部
func (s *Store) CurrentLocalListEntries(ctx context.Context, chargePointID string, idTagFilter []string) ([]storage.LocalListEntry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(idTagFilter) == 0 {
		rows, err = s.pool.Query(ctx, `
			select id_tag, parent_id_tag, expiry_date, blocked from id_tags order by id_tag
		`)
	} else {
		rows, err = s.pool.Query(ctx, `
			select id_tag, parent_id_tag, expiry_date, blocked from id_tags
			where id_tag = any($1) order by id_tag
		`, idTagFilter)
	}
	if err != nil {
		return nil, storage.WrapError("local list entries", err)
	}
	defer rows.Close()

	var out []storage.LocalListEntry
	for rows.Next() {
		var e storage.LocalListEntry
		if err := rows.Scan(&e.IdTag, &e.ParentIdTag, &e.ExpiryDate, &e.Blocked); err != nil {
			return nil, storage.WrapError("local list entries", err)
		}
		out = append(out, e)
	}
	return out, storage.WrapError("local list entries", rows.Err())
}

// Close 关闭连接池
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
