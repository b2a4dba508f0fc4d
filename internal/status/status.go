// Package status implements the pedido lifecycle state machine.
//
// The forward path is strictly linear; CANCELADO is an absorbing escape
// state reachable from any open status. Successor and predecessor are
// derived from a single ordered table so that no call site carries its own
// "next status" arithmetic.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mellooticas/desenrola-dcl/internal/model"
)

// ErrInvalidTransition is the sentinel matched by errors.Is for every
// rejected state change.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidTransitionError identifies the attempted edge of a rejected
// transition.
type InvalidTransitionError struct {
	Op     string
	From   model.StatusPedido
	To     model.StatusPedido
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("%s from %s: %s", e.Op, e.From, e.Reason)
	}
	return fmt.Sprintf("%s from %s to %s: %s", e.Op, e.From, e.To, e.Reason)
}

// Is reports that every InvalidTransitionError matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// sequence is the linear forward path. CANCELADO is deliberately absent:
// it is not part of the sequence, only an escape state.
var sequence = []model.StatusPedido{
	model.StatusPendente,
	model.StatusRegistrado,
	model.StatusAgPagamento,
	model.StatusPago,
	model.StatusProducao,
	model.StatusPronto,
	model.StatusEnviado,
	model.StatusChegou,
	model.StatusEntregue,
	model.StatusFinalizado,
}

var sequenceIndex = func() map[model.StatusPedido]int {
	m := make(map[model.StatusPedido]int, len(sequence))
	for i, s := range sequence {
		m[s] = i
	}
	return m
}()

// Next returns the successor of s on the linear path. The second return is
// false when s has no successor (FINALIZADO, CANCELADO or unknown).
func Next(s model.StatusPedido) (model.StatusPedido, bool) {
	i, ok := sequenceIndex[s]
	if !ok || i == len(sequence)-1 {
		return "", false
	}
	return sequence[i+1], true
}

// Prev returns the predecessor of s on the linear path. The second return
// is false when s has no predecessor (PENDENTE, CANCELADO or unknown).
func Prev(s model.StatusPedido) (model.StatusPedido, bool) {
	i, ok := sequenceIndex[s]
	if !ok || i == 0 {
		return "", false
	}
	return sequence[i-1], true
}

// IsTerminal reports whether no forward movement is possible from s.
func IsTerminal(s model.StatusPedido) bool {
	return s == model.StatusFinalizado || s == model.StatusCancelado
}

// IsClosed reports whether s is excluded from the operational board.
func IsClosed(s model.StatusPedido) bool {
	return s == model.StatusEntregue || IsTerminal(s)
}

// Store is the persistence contract the engine writes through. WriteStatus
// must apply the new status conditionally on the expected current status
// and append the event in the same logical unit; a stale expectation must
// surface as an error, never as a silent overwrite.
type Store interface {
	WriteStatus(ctx context.Context, id uuid.UUID, expected, novo model.StatusPedido, evento *model.PedidoEvento) (*model.Pedido, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, expected model.StatusPedido, data time.Time, forma string, evento *model.PedidoEvento) (*model.Pedido, error)
}

// Engine validates and applies pedido status transitions.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates a transition engine writing through the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Advance moves the pedido to the next status on the linear path.
//
// Leaving AG_PAGAMENTO requires a confirmed payment. Entering ENTREGUE
// freezes forward movement: closing the pedido takes an explicit Finalize.
func (e *Engine) Advance(ctx context.Context, p *model.Pedido, usuario, observacao string) (*model.Pedido, error) {
	if p.Status == model.StatusCancelado {
		return nil, &InvalidTransitionError{Op: "advance", From: p.Status, Reason: "pedido is cancelled"}
	}
	if p.Status == model.StatusEntregue {
		return nil, &InvalidTransitionError{Op: "advance", From: p.Status, Reason: "delivered pedido requires explicit finalize"}
	}

	novo, ok := Next(p.Status)
	if !ok {
		return nil, &InvalidTransitionError{Op: "advance", From: p.Status, Reason: "no successor status"}
	}

	if p.Status == model.StatusAgPagamento && p.DataPagamento == nil {
		return nil, &InvalidTransitionError{Op: "advance", From: p.Status, To: novo, Reason: "payment not confirmed"}
	}

	if observacao == "" {
		observacao = fmt.Sprintf("Status alterado para %s", novo)
	}

	return e.write(ctx, p, novo, usuario, observacao)
}

// Regress moves the pedido to the previous status on the linear path.
// Regression out of CANCELADO is not permitted: cancellation is terminal.
func (e *Engine) Regress(ctx context.Context, p *model.Pedido, usuario, observacao string) (*model.Pedido, error) {
	if p.Status == model.StatusCancelado {
		return nil, &InvalidTransitionError{Op: "regress", From: p.Status, Reason: "pedido is cancelled"}
	}

	novo, ok := Prev(p.Status)
	if !ok {
		return nil, &InvalidTransitionError{Op: "regress", From: p.Status, Reason: "no predecessor status"}
	}

	if observacao == "" {
		observacao = fmt.Sprintf("Status retornado para %s", novo)
	}

	return e.write(ctx, p, novo, usuario, observacao)
}

// Finalize closes a delivered pedido.
func (e *Engine) Finalize(ctx context.Context, p *model.Pedido, usuario, observacao string) (*model.Pedido, error) {
	if p.Status != model.StatusEntregue {
		return nil, &InvalidTransitionError{Op: "finalize", From: p.Status, To: model.StatusFinalizado, Reason: "only delivered pedidos can be finalized"}
	}

	if observacao == "" {
		observacao = "Pedido finalizado"
	}

	return e.write(ctx, p, model.StatusFinalizado, usuario, observacao)
}

// Cancel transitions the pedido to CANCELADO, recording the reason in the
// event note. Cancelling an already-cancelled or finalized pedido is
// rejected, not silently accepted.
func (e *Engine) Cancel(ctx context.Context, p *model.Pedido, motivo, usuario string) (*model.Pedido, error) {
	if p.Status == model.StatusCancelado {
		return nil, &InvalidTransitionError{Op: "cancel", From: p.Status, Reason: "pedido already cancelled"}
	}
	if p.Status == model.StatusFinalizado {
		return nil, &InvalidTransitionError{Op: "cancel", From: p.Status, Reason: "pedido already finalized"}
	}

	observacao := "Pedido cancelado"
	if motivo != "" {
		observacao = "Pedido cancelado: " + motivo
	}

	return e.write(ctx, p, model.StatusCancelado, usuario, observacao)
}

// ConfirmPayment records the payment and moves the pedido to PAGO. Allowed
// from REGISTRADO and AG_PAGAMENTO only.
func (e *Engine) ConfirmPayment(ctx context.Context, p *model.Pedido, data time.Time, forma, usuario string) (*model.Pedido, error) {
	if p.Status != model.StatusRegistrado && p.Status != model.StatusAgPagamento {
		return nil, &InvalidTransitionError{Op: "confirm payment", From: p.Status, To: model.StatusPago, Reason: "pedido already paid or not payable"}
	}

	if forma == "" {
		forma = "Não informado"
	}

	evento := &model.PedidoEvento{
		ID:             uuid.New(),
		PedidoID:       p.ID,
		StatusAnterior: p.Status,
		StatusNovo:     model.StatusPago,
		Usuario:        usuario,
		Observacao:     "Pagamento confirmado. Forma: " + forma,
		CriadoEm:       e.now(),
	}

	updated, err := e.store.ConfirmPayment(ctx, p.ID, p.Status, data, forma, evento)
	if err != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", p.ID, err)
	}
	return updated, nil
}

func (e *Engine) write(ctx context.Context, p *model.Pedido, novo model.StatusPedido, usuario, observacao string) (*model.Pedido, error) {
	evento := &model.PedidoEvento{
		ID:             uuid.New(),
		PedidoID:       p.ID,
		StatusAnterior: p.Status,
		StatusNovo:     novo,
		Usuario:        usuario,
		Observacao:     observacao,
		CriadoEm:       e.now(),
	}

	updated, err := e.store.WriteStatus(ctx, p.ID, p.Status, novo, evento)
	if err != nil {
		return nil, fmt.Errorf("write status %s -> %s: %w", p.Status, novo, err)
	}
	return updated, nil
}
