// Package model contains the domain entities of the desenrola-dcl order system.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusPedido is the lifecycle status of a pedido.
type StatusPedido string

const (
	StatusPendente    StatusPedido = "PENDENTE"
	StatusRegistrado  StatusPedido = "REGISTRADO"
	StatusAgPagamento StatusPedido = "AG_PAGAMENTO"
	StatusPago        StatusPedido = "PAGO"
	StatusProducao    StatusPedido = "PRODUCAO"
	StatusPronto      StatusPedido = "PRONTO"
	StatusEnviado     StatusPedido = "ENVIADO"
	StatusChegou      StatusPedido = "CHEGOU"
	StatusEntregue    StatusPedido = "ENTREGUE"
	StatusFinalizado  StatusPedido = "FINALIZADO"
	StatusCancelado   StatusPedido = "CANCELADO"
)

// Prioridade is the processing priority of a pedido.
type Prioridade string

const (
	PrioridadeBaixa   Prioridade = "BAIXA"
	PrioridadeNormal  Prioridade = "NORMAL"
	PrioridadeAlta    Prioridade = "ALTA"
	PrioridadeUrgente Prioridade = "URGENTE"
)

// Pedido is an optical-lens manufacturing order.
//
// LojaNome, LaboratorioNome and ClasseNome are denormalized display
// snapshots. Business rules always resolve through the reference ids;
// the names may be stale or empty.
type Pedido struct {
	ID                  uuid.UUID
	NumeroSequencial    int64
	NumeroOSFisica      string
	NumeroOSLaboratorio string

	LojaID        uuid.UUID
	LaboratorioID uuid.UUID
	ClasseLenteID uuid.UUID

	Status     StatusPedido
	Prioridade Prioridade
	EhGarantia bool

	ClienteNome     string
	ClienteTelefone string
	Observacoes     string

	// ValorVenda is nil for warranty pedidos; CustoLentes is nil while the
	// lab has not quoted the lens cost yet.
	ValorVenda  *decimal.Decimal
	CustoLentes *decimal.Decimal

	// DataPrometida and DataSLALaboratorio are independent deadlines.
	// Neither is ever derived from the other.
	DataPrometida      *time.Time
	DataSLALaboratorio *time.Time
	DataPrevistaPronto *time.Time

	DataPagamento  *time.Time
	FormaPagamento string

	LojaNome        string
	LaboratorioNome string
	ClasseNome      string

	CriadoEm     time.Time
	AtualizadoEm time.Time
}

// PedidoEvento is an immutable lifecycle event, appended whenever a pedido
// changes status or has a payment confirmed. Events are never updated or
// deleted.
type PedidoEvento struct {
	ID             uuid.UUID
	PedidoID       uuid.UUID
	StatusAnterior StatusPedido
	StatusNovo     StatusPedido
	Usuario        string
	Observacao     string
	CriadoEm       time.Time
}
