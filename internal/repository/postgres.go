// Package repository implements the pedido store on PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mellooticas/desenrola-dcl/internal/model"
	"github.com/mellooticas/desenrola-dcl/internal/sla"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrPedidoNotFound is returned when a pedido id does not exist.
var (
	ErrPedidoNotFound = errors.New("pedido not found")
	// ErrConflict is returned when a conditional status write finds the
	// pedido in a different status than the caller expected. The stale
	// caller must re-fetch and reconcile; the store never overwrites a
	// concurrent change silently.
	ErrConflict = errors.New("pedido status changed concurrently")
	// ErrConfigMissing is returned when a lead time or priority
	// adjustment is not configured.
	ErrConfigMissing = errors.New("sla configuration not found")
)

const pedidoColumns = `
	p.id, p.numero_sequencial, p.numero_os_fisica, p.numero_pedido_laboratorio,
	p.loja_id, p.laboratorio_id, p.classe_lente_id,
	p.status, p.prioridade, p.eh_garantia,
	p.cliente_nome, p.cliente_telefone, p.observacoes,
	p.valor_venda, p.custo_lentes,
	p.data_prometida, p.data_sla_laboratorio, p.data_prevista_pronto,
	p.data_pagamento, p.forma_pagamento,
	l.nome, lab.nome, c.nome,
	p.criado_em, p.atualizado_em`

const pedidoJoins = `
	FROM pedidos p
	LEFT JOIN lojas l ON l.id = p.loja_id
	LEFT JOIN laboratorios lab ON lab.id = p.laboratorio_id
	LEFT JOIN classes_lente c ON c.id = p.classe_lente_id`

// PostgresRepository provides pedido persistence backed by a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database and applies the embedded
// migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPedido(row rowScanner) (*model.Pedido, error) {
	var (
		p          model.Pedido
		valor      *decimal.Decimal
		custo      *decimal.Decimal
		lojaNome   *string
		labNome    *string
		classeNome *string
	)

	err := row.Scan(
		&p.ID, &p.NumeroSequencial, &p.NumeroOSFisica, &p.NumeroOSLaboratorio,
		&p.LojaID, &p.LaboratorioID, &p.ClasseLenteID,
		&p.Status, &p.Prioridade, &p.EhGarantia,
		&p.ClienteNome, &p.ClienteTelefone, &p.Observacoes,
		&valor, &custo,
		&p.DataPrometida, &p.DataSLALaboratorio, &p.DataPrevistaPronto,
		&p.DataPagamento, &p.FormaPagamento,
		&lojaNome, &labNome, &classeNome,
		&p.CriadoEm, &p.AtualizadoEm,
	)
	if err != nil {
		return nil, err
	}

	p.ValorVenda = valor
	p.CustoLentes = custo
	if lojaNome != nil {
		p.LojaNome = *lojaNome
	}
	if labNome != nil {
		p.LaboratorioNome = *labNome
	}
	if classeNome != nil {
		p.ClasseNome = *classeNome
	}

	return &p, nil
}

// FetchPedidos returns every pedido with its denormalized display names.
func (r *PostgresRepository) FetchPedidos(ctx context.Context) ([]model.Pedido, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pedidoColumns+pedidoJoins+` ORDER BY p.atualizado_em DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select pedidos: %w", err)
	}
	defer rows.Close()

	var pedidos []model.Pedido
	for rows.Next() {
		p, err := scanPedido(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pedido: %w", err)
		}
		pedidos = append(pedidos, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return pedidos, nil
}

// GetPedido returns one pedido by id.
func (r *PostgresRepository) GetPedido(ctx context.Context, id uuid.UUID) (*model.Pedido, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+pedidoColumns+pedidoJoins+` WHERE p.id = $1`,
		id,
	)

	p, err := scanPedido(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPedidoNotFound
		}
		return nil, fmt.Errorf("get pedido: %w", err)
	}

	return p, nil
}

// CreatePedido inserts a new pedido, assigning the sequential number from
// the tenant sequence. The creation event is appended by the caller, which
// owns the retry policy for it.
func (r *PostgresRepository) CreatePedido(ctx context.Context, p *model.Pedido) (*model.Pedido, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO pedidos (
			id, numero_sequencial, numero_os_fisica, numero_pedido_laboratorio,
			loja_id, laboratorio_id, classe_lente_id,
			status, prioridade, eh_garantia,
			cliente_nome, cliente_telefone, observacoes,
			valor_venda, custo_lentes,
			data_prometida, data_sla_laboratorio, data_prevista_pronto
		) VALUES (
			$1, nextval('pedidos_numero_seq'), $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14,
			$15, $16, $17
		) RETURNING numero_sequencial, criado_em, atualizado_em`,
		p.ID, p.NumeroOSFisica, p.NumeroOSLaboratorio,
		p.LojaID, p.LaboratorioID, p.ClasseLenteID,
		string(p.Status), string(p.Prioridade), p.EhGarantia,
		p.ClienteNome, p.ClienteTelefone, p.Observacoes,
		p.ValorVenda, p.CustoLentes,
		p.DataPrometida, p.DataSLALaboratorio, p.DataPrevistaPronto,
	).Scan(&p.NumeroSequencial, &p.CriadoEm, &p.AtualizadoEm)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%w: unknown loja, laboratório or classe reference", ErrConfigMissing)
		}
		return nil, fmt.Errorf("insert pedido: %w", err)
	}

	return p, nil
}

// WriteStatus applies the new status conditionally on the expected current
// status and appends the lifecycle event in one transaction. A stale
// expectation yields ErrConflict and leaves the pedido untouched.
func (r *PostgresRepository) WriteStatus(ctx context.Context, id uuid.UUID, expected, novo model.StatusPedido, evento *model.PedidoEvento) (*model.Pedido, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE pedidos SET status = $3, atualizado_em = now() WHERE id = $1 AND status = $2`,
		id, string(expected), string(novo),
	)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return nil, r.conflictOrMissing(ctx, tx, id)
	}

	if err := insertEvento(ctx, tx, evento); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.GetPedido(ctx, id)
}

// ConfirmPayment records the payment data and moves the pedido to PAGO,
// conditionally on the expected current status, with the payment event in
// the same transaction.
func (r *PostgresRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, expected model.StatusPedido, data time.Time, forma string, evento *model.PedidoEvento) (*model.Pedido, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE pedidos
		 SET status = $3, data_pagamento = $4, forma_pagamento = $5, atualizado_em = now()
		 WHERE id = $1 AND status = $2`,
		id, string(expected), string(model.StatusPago), data, forma,
	)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return nil, r.conflictOrMissing(ctx, tx, id)
	}

	if err := insertEvento(ctx, tx, evento); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.GetPedido(ctx, id)
}

func (r *PostgresRepository) conflictOrMissing(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM pedidos WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPedidoNotFound
	}
	if err != nil {
		return fmt.Errorf("select current status: %w", err)
	}
	return fmt.Errorf("%w: currently %s", ErrConflict, current)
}

func insertEvento(ctx context.Context, tx pgx.Tx, evento *model.PedidoEvento) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO pedido_eventos (id, pedido_id, status_anterior, status_novo, usuario, observacao, criado_em)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evento.ID, evento.PedidoID, string(evento.StatusAnterior), string(evento.StatusNovo),
		evento.Usuario, evento.Observacao, evento.CriadoEm,
	)
	if err != nil {
		return fmt.Errorf("insert evento: %w", err)
	}
	return nil
}

// AppendEvento appends a lifecycle event outside a status write. Used for
// creation notes and by the retry path when a caller-side append failed
// after a committed write.
func (r *PostgresRepository) AppendEvento(ctx context.Context, evento *model.PedidoEvento) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertEvento(ctx, tx, evento); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetEventos returns the lifecycle timeline of a pedido, oldest first.
func (r *PostgresRepository) GetEventos(ctx context.Context, pedidoID uuid.UUID) ([]model.PedidoEvento, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, pedido_id, status_anterior, status_novo, usuario, observacao, criado_em
		 FROM pedido_eventos
		 WHERE pedido_id = $1
		 ORDER BY criado_em`,
		pedidoID,
	)
	if err != nil {
		return nil, fmt.Errorf("select eventos: %w", err)
	}
	defer rows.Close()

	var eventos []model.PedidoEvento
	for rows.Next() {
		var e model.PedidoEvento
		if err := rows.Scan(&e.ID, &e.PedidoID, &e.StatusAnterior, &e.StatusNovo, &e.Usuario, &e.Observacao, &e.CriadoEm); err != nil {
			return nil, fmt.Errorf("scan evento: %w", err)
		}
		eventos = append(eventos, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return eventos, nil
}

// GetLeadTimeDays resolves the lab lead time for a lens class: the class
// base SLA when configured, falling back to the lab default. Missing both
// is ErrConfigMissing, never a silent default.
func (r *PostgresRepository) GetLeadTimeDays(ctx context.Context, labID, classeID uuid.UUID) (int, error) {
	var classeDias *int
	err := r.pool.QueryRow(ctx,
		`SELECT sla_base_dias FROM classes_lente WHERE id = $1`, classeID,
	).Scan(&classeDias)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("select classe sla: %w", err)
	}
	if classeDias != nil {
		return *classeDias, nil
	}

	var labDias *int
	err = r.pool.QueryRow(ctx,
		`SELECT sla_padrao_dias FROM laboratorios WHERE id = $1`, labID,
	).Scan(&labDias)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("select laboratorio sla: %w", err)
	}
	if labDias != nil {
		return *labDias, nil
	}

	return 0, fmt.Errorf("%w: no lead time for laboratorio %s / classe %s", ErrConfigMissing, labID, classeID)
}

// GetSLAConfig returns the priority adjustment set and the customer
// promise lead time.
func (r *PostgresRepository) GetSLAConfig(ctx context.Context) (sla.Adjustment, int, error) {
	var adj sla.Adjustment
	var prometidoDias int
	err := r.pool.QueryRow(ctx,
		`SELECT urgente_piso_dias, alta_reducao_dias, baixa_adicao_dias, prazo_prometido_dias
		 FROM configuracoes_sla LIMIT 1`,
	).Scan(&adj.UrgenteFloorDays, &adj.AltaReducaoDays, &adj.BaixaAdicaoDays, &prometidoDias)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sla.Adjustment{}, 0, ErrConfigMissing
		}
		return sla.Adjustment{}, 0, fmt.Errorf("select configuracoes_sla: %w", err)
	}
	return adj, prometidoDias, nil
}
