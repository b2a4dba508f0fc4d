// Package service implements the business operations of desenrola-dcl:
// listing and creating pedidos, driving status transitions and producing
// the dashboard snapshot.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mellooticas/desenrola-dcl/internal/filter"
	"github.com/mellooticas/desenrola-dcl/internal/metrics"
	"github.com/mellooticas/desenrola-dcl/internal/model"
	"github.com/mellooticas/desenrola-dcl/internal/notify"
	"github.com/mellooticas/desenrola-dcl/internal/sla"
	"github.com/mellooticas/desenrola-dcl/internal/status"
)

// Store is the persistence contract used by the service. The pedido store
// is the single source of truth and the sole mutator of persisted state.
type Store interface {
	status.Store
	Close() error
	FetchPedidos(ctx context.Context) ([]model.Pedido, error)
	GetPedido(ctx context.Context, id uuid.UUID) (*model.Pedido, error)
	CreatePedido(ctx context.Context, p *model.Pedido) (*model.Pedido, error)
	AppendEvento(ctx context.Context, evento *model.PedidoEvento) error
	GetEventos(ctx context.Context, pedidoID uuid.UUID) ([]model.PedidoEvento, error)
	GetLeadTimeDays(ctx context.Context, labID, classeID uuid.UUID) (int, error)
	GetSLAConfig(ctx context.Context) (sla.Adjustment, int, error)
}

// Service wires the store, the transition engine and the notifier.
type Service struct {
	store    Store
	engine   *status.Engine
	notifier *notify.Client
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the service. The notifier may be nil.
func NewService(store Store, notifier *notify.Client, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		engine:   status.NewEngine(store),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// NovoPedido carries the input of CreatePedido.
type NovoPedido struct {
	LojaID        uuid.UUID
	LaboratorioID uuid.UUID
	ClasseLenteID uuid.UUID
	Prioridade    model.Prioridade
	EhGarantia    bool

	ClienteNome     string
	ClienteTelefone string
	Observacoes     string

	NumeroOSFisica      string
	NumeroOSLaboratorio string

	ValorVenda  *decimal.Decimal
	CustoLentes *decimal.Decimal

	Usuario string
}

// CreatePedido registers a new pedido in PENDENTE, deriving both deadlines
// from the configured lead times at creation time. The customer promise
// date is fixed here and never recomputed afterwards.
func (s *Service) CreatePedido(ctx context.Context, in NovoPedido) (*model.Pedido, error) {
	leadDays, err := s.store.GetLeadTimeDays(ctx, in.LaboratorioID, in.ClasseLenteID)
	if err != nil {
		return nil, err
	}

	adj, prometidoDias, err := s.store.GetSLAConfig(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if in.Prioridade == "" {
		in.Prioridade = model.PrioridadeNormal
	}

	labSLA, prometida := sla.ComputeDeadlines(now, in.Prioridade, leadDays, prometidoDias, adj)

	p := &model.Pedido{
		ID:                  uuid.New(),
		NumeroOSFisica:      in.NumeroOSFisica,
		NumeroOSLaboratorio: in.NumeroOSLaboratorio,
		LojaID:              in.LojaID,
		LaboratorioID:       in.LaboratorioID,
		ClasseLenteID:       in.ClasseLenteID,
		Status:              model.StatusPendente,
		Prioridade:          in.Prioridade,
		EhGarantia:          in.EhGarantia,
		ClienteNome:         in.ClienteNome,
		ClienteTelefone:     in.ClienteTelefone,
		Observacoes:         in.Observacoes,
		ValorVenda:          in.ValorVenda,
		CustoLentes:         in.CustoLentes,
		DataSLALaboratorio:  &labSLA,
		DataPrometida:       &prometida,
	}

	created, err := s.store.CreatePedido(ctx, p)
	if err != nil {
		return nil, err
	}

	// The pedido row is already committed; the creation event is a
	// recoverable side effect, retried with backoff instead of rolling
	// the pedido back.
	evento := &model.PedidoEvento{
		ID:             uuid.New(),
		PedidoID:       created.ID,
		StatusAnterior: model.StatusPendente,
		StatusNovo:     model.StatusPendente,
		Usuario:        in.Usuario,
		Observacao:     "Pedido criado",
		CriadoEm:       now,
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.store.AppendEvento(ctx, evento); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("creation event append failed",
			zap.String("pedido", created.ID.String()),
			zap.Error(err),
		)
	}

	return created, nil
}

// ListPedidos fetches the pedido collection once, applies the composed
// filter predicate in a single pass and annotates each match with its
// derived temporal state.
func (s *Service) ListPedidos(ctx context.Context, criteria filter.Criteria) ([]sla.PedidoView, error) {
	now := s.now()

	pred, err := filter.Build(criteria, now)
	if err != nil {
		return nil, err
	}

	pedidos, err := s.store.FetchPedidos(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]sla.PedidoView, 0, len(pedidos))
	for i := range pedidos {
		if pred(&pedidos[i]) {
			views = append(views, sla.Annotate(pedidos[i], now))
		}
	}

	return views, nil
}

// Dashboard fetches one consistent snapshot of the pedido collection,
// filters it and aggregates the dashboard metrics from that single set.
func (s *Service) Dashboard(ctx context.Context, criteria filter.Criteria) (*metrics.Snapshot, error) {
	now := s.now()

	pred, err := filter.Build(criteria, now)
	if err != nil {
		return nil, err
	}

	pedidos, err := s.store.FetchPedidos(ctx)
	if err != nil {
		return nil, err
	}

	selected := pedidos[:0:0]
	for i := range pedidos {
		if pred(&pedidos[i]) {
			selected = append(selected, pedidos[i])
		}
	}

	snapshot := metrics.Aggregate(selected, now)
	return &snapshot, nil
}

// Timeline returns the lifecycle events of a pedido, oldest first.
func (s *Service) Timeline(ctx context.Context, pedidoID uuid.UUID) ([]model.PedidoEvento, error) {
	return s.store.GetEventos(ctx, pedidoID)
}

// GetPedido returns one pedido annotated with its derived temporal state.
func (s *Service) GetPedido(ctx context.Context, id uuid.UUID) (*sla.PedidoView, error) {
	p, err := s.store.GetPedido(ctx, id)
	if err != nil {
		return nil, err
	}
	v := sla.Annotate(*p, s.now())
	return &v, nil
}

// Advance moves a pedido to the next status.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, usuario, observacao string) (*model.Pedido, error) {
	return s.transition(ctx, id, func(p *model.Pedido) (*model.Pedido, error) {
		return s.engine.Advance(ctx, p, usuario, observacao)
	})
}

// Regress moves a pedido to the previous status.
func (s *Service) Regress(ctx context.Context, id uuid.UUID, usuario, observacao string) (*model.Pedido, error) {
	return s.transition(ctx, id, func(p *model.Pedido) (*model.Pedido, error) {
		return s.engine.Regress(ctx, p, usuario, observacao)
	})
}

// Finalize closes a delivered pedido.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, usuario, observacao string) (*model.Pedido, error) {
	return s.transition(ctx, id, func(p *model.Pedido) (*model.Pedido, error) {
		return s.engine.Finalize(ctx, p, usuario, observacao)
	})
}

// Cancel cancels a pedido, recording the reason in the event note.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, motivo, usuario string) (*model.Pedido, error) {
	return s.transition(ctx, id, func(p *model.Pedido) (*model.Pedido, error) {
		return s.engine.Cancel(ctx, p, motivo, usuario)
	})
}

// ConfirmPayment records a payment and moves the pedido to PAGO.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, data time.Time, forma, usuario string) (*model.Pedido, error) {
	return s.transition(ctx, id, func(p *model.Pedido) (*model.Pedido, error) {
		return s.engine.ConfirmPayment(ctx, p, data, forma, usuario)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(*model.Pedido) (*model.Pedido, error)) (*model.Pedido, error) {
	p, err := s.store.GetPedido(ctx, id)
	if err != nil {
		return nil, err
	}

	anterior := p.Status

	updated, err := fn(p)
	if err != nil {
		return nil, err
	}

	s.notifyStatusChanged(ctx, &model.PedidoEvento{
		PedidoID:       updated.ID,
		StatusAnterior: anterior,
		StatusNovo:     updated.Status,
		CriadoEm:       s.now(),
	})

	return updated, nil
}

func (s *Service) notifyStatusChanged(ctx context.Context, evento *model.PedidoEvento) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.StatusChanged(ctx, evento); err != nil {
		s.logger.Warn("webhook notification failed",
			zap.String("pedido", evento.PedidoID.String()),
			zap.Error(err),
		)
	}
}
