// Package handler contains the HTTP handlers of the desenrola-dcl API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mellooticas/desenrola-dcl/internal/filter"
	"github.com/mellooticas/desenrola-dcl/internal/metrics"
	"github.com/mellooticas/desenrola-dcl/internal/model"
	"github.com/mellooticas/desenrola-dcl/internal/repository"
	"github.com/mellooticas/desenrola-dcl/internal/service"
	"github.com/mellooticas/desenrola-dcl/internal/sla"
	"github.com/mellooticas/desenrola-dcl/internal/status"
)

// Service defines the business operations used by the HTTP handlers.
type Service interface {
	ListPedidos(ctx context.Context, criteria filter.Criteria) ([]sla.PedidoView, error)
	GetPedido(ctx context.Context, id uuid.UUID) (*sla.PedidoView, error)
	CreatePedido(ctx context.Context, in service.NovoPedido) (*model.Pedido, error)
	Dashboard(ctx context.Context, criteria filter.Criteria) (*metrics.Snapshot, error)
	Timeline(ctx context.Context, pedidoID uuid.UUID) ([]model.PedidoEvento, error)
	Advance(ctx context.Context, id uuid.UUID, usuario, observacao string) (*model.Pedido, error)
	Regress(ctx context.Context, id uuid.UUID, usuario, observacao string) (*model.Pedido, error)
	Finalize(ctx context.Context, id uuid.UUID, usuario, observacao string) (*model.Pedido, error)
	Cancel(ctx context.Context, id uuid.UUID, motivo, usuario string) (*model.Pedido, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, data time.Time, forma, usuario string) (*model.Pedido, error)
}

// Handler implements the HTTP handlers of the desenrola-dcl API.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{service: s, logger: logger}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, filter.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrPedidoNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, status.ErrInvalidTransition), errors.Is(err, repository.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, repository.ErrConfigMissing):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func pedidoID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type pedidoResponse struct {
	ID                  uuid.UUID          `json:"id"`
	NumeroSequencial    int64              `json:"numero_sequencial"`
	NumeroOSFisica      string             `json:"numero_os_fisica,omitempty"`
	NumeroOSLaboratorio string             `json:"numero_pedido_laboratorio,omitempty"`
	LojaID              uuid.UUID          `json:"loja_id"`
	LaboratorioID       uuid.UUID          `json:"laboratorio_id"`
	ClasseLenteID       uuid.UUID          `json:"classe_lente_id"`
	Status              model.StatusPedido `json:"status"`
	Prioridade          model.Prioridade   `json:"prioridade"`
	EhGarantia          bool               `json:"eh_garantia"`
	ClienteNome         string             `json:"cliente_nome"`
	ClienteTelefone     string             `json:"cliente_telefone,omitempty"`
	ValorVenda          *decimal.Decimal   `json:"valor_venda,omitempty"`
	CustoLentes         *decimal.Decimal   `json:"custo_lentes,omitempty"`
	DataPrometida       *string            `json:"data_prometida,omitempty"`
	DataSLALaboratorio  *string            `json:"data_sla_laboratorio,omitempty"`
	DataPagamento       *string            `json:"data_pagamento,omitempty"`
	FormaPagamento      string             `json:"forma_pagamento,omitempty"`
	LojaNome            string             `json:"loja_nome,omitempty"`
	LaboratorioNome     string             `json:"laboratorio_nome,omitempty"`
	ClasseNome          string             `json:"classe_nome,omitempty"`
	CriadoEm            string             `json:"criado_em"`

	DiasParaVencerSLA       *int          `json:"dias_para_vencer_sla,omitempty"`
	DiasParaVencerPrometido *int          `json:"dias_para_vencer_prometido,omitempty"`
	SituacaoSLA             sla.Situation `json:"situacao_sla,omitempty"`
	SituacaoPrometido       sla.Situation `json:"situacao_prometido,omitempty"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.In(sla.Location).Format("2006-01-02")
	return &s
}

func toPedidoResponse(v sla.PedidoView) pedidoResponse {
	return pedidoResponse{
		ID:                      v.ID,
		NumeroSequencial:        v.NumeroSequencial,
		NumeroOSFisica:          v.NumeroOSFisica,
		NumeroOSLaboratorio:     v.NumeroOSLaboratorio,
		LojaID:                  v.LojaID,
		LaboratorioID:           v.LaboratorioID,
		ClasseLenteID:           v.ClasseLenteID,
		Status:                  v.Status,
		Prioridade:              v.Prioridade,
		EhGarantia:              v.EhGarantia,
		ClienteNome:             v.ClienteNome,
		ClienteTelefone:         v.ClienteTelefone,
		ValorVenda:              v.ValorVenda,
		CustoLentes:             v.CustoLentes,
		DataPrometida:           formatDate(v.DataPrometida),
		DataSLALaboratorio:      formatDate(v.DataSLALaboratorio),
		DataPagamento:           formatDate(v.DataPagamento),
		FormaPagamento:          v.FormaPagamento,
		LojaNome:                v.LojaNome,
		LaboratorioNome:         v.LaboratorioNome,
		ClasseNome:              v.ClasseNome,
		CriadoEm:                v.CriadoEm.Format(time.RFC3339),
		DiasParaVencerSLA:       v.DiasParaVencerSLA,
		DiasParaVencerPrometido: v.DiasParaVencerPrometido,
		SituacaoSLA:             v.SituacaoSLA,
		SituacaoPrometido:       v.SituacaoPrometido,
	}
}

// parseCriteria builds filter criteria from the request query string.
func parseCriteria(r *http.Request) (filter.Criteria, error) {
	q := r.URL.Query()

	c := filter.Criteria{
		Busca:               q.Get("busca"),
		NumeroSequencial:    q.Get("numero_sequencial"),
		NumeroOSFisica:      q.Get("numero_os_fisica"),
		NumeroOSLaboratorio: q.Get("numero_pedido_laboratorio"),
		Telefone:            q.Get("telefone"),
		Status:              model.StatusPedido(q.Get("status")),
		Prioridade:          model.Prioridade(q.Get("prioridade")),
		SituacaoSLA:         sla.Situation(q.Get("situacao_sla")),
		Periodo:             q.Get("periodo"),
	}

	for param, dst := range map[string]*uuid.UUID{
		"loja_id":        &c.LojaID,
		"laboratorio_id": &c.LaboratorioID,
		"classe_id":      &c.ClasseLenteID,
	} {
		if v := q.Get(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return filter.Criteria{}, &filter.InvalidInputError{Field: param, Reason: "malformed uuid"}
			}
			*dst = id
		}
	}

	for param, dst := range map[string]**time.Time{
		"data_inicio": &c.DataInicio,
		"data_fim":    &c.DataFim,
	} {
		if v := q.Get(param); v != "" {
			d, err := time.ParseInLocation("2006-01-02", v, sla.Location)
			if err != nil {
				return filter.Criteria{}, &filter.InvalidInputError{Field: param, Reason: "expected YYYY-MM-DD"}
			}
			*dst = &d
		}
	}

	return c, nil
}

// ListPedidos returns the filtered, annotated pedido collection.
func (h *Handler) ListPedidos(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views, err := h.service.ListPedidos(r.Context(), criteria)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]pedidoResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toPedidoResponse(v))
	}

	writeJSON(w, resp)
}

// GetPedido returns one annotated pedido.
func (h *Handler) GetPedido(w http.ResponseWriter, r *http.Request) {
	id, err := pedidoID(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	v, err := h.service.GetPedido(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, toPedidoResponse(*v))
}

type createPedidoRequest struct {
	LojaID              uuid.UUID        `json:"loja_id"`
	LaboratorioID       uuid.UUID        `json:"laboratorio_id"`
	ClasseLenteID       uuid.UUID        `json:"classe_lente_id"`
	Prioridade          string           `json:"prioridade"`
	EhGarantia          bool             `json:"eh_garantia"`
	ClienteNome         string           `json:"cliente_nome"`
	ClienteTelefone     string           `json:"cliente_telefone"`
	Observacoes         string           `json:"observacoes"`
	NumeroOSFisica      string           `json:"numero_os_fisica"`
	NumeroOSLaboratorio string           `json:"numero_pedido_laboratorio"`
	ValorVenda          *decimal.Decimal `json:"valor_venda"`
	CustoLentes         *decimal.Decimal `json:"custo_lentes"`
	Usuario             string           `json:"usuario"`
}

// CreatePedido registers a new pedido.
func (h *Handler) CreatePedido(w http.ResponseWriter, r *http.Request) {
	var req createPedidoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ClienteNome == "" || req.LojaID == uuid.Nil || req.LaboratorioID == uuid.Nil || req.ClasseLenteID == uuid.Nil {
		http.Error(w, "cliente_nome, loja_id, laboratorio_id and classe_lente_id are required", http.StatusBadRequest)
		return
	}

	p, err := h.service.CreatePedido(r.Context(), service.NovoPedido{
		LojaID:              req.LojaID,
		LaboratorioID:       req.LaboratorioID,
		ClasseLenteID:       req.ClasseLenteID,
		Prioridade:          model.Prioridade(req.Prioridade),
		EhGarantia:          req.EhGarantia,
		ClienteNome:         req.ClienteNome,
		ClienteTelefone:     req.ClienteTelefone,
		Observacoes:         req.Observacoes,
		NumeroOSFisica:      req.NumeroOSFisica,
		NumeroOSLaboratorio: req.NumeroOSLaboratorio,
		ValorVenda:          req.ValorVenda,
		CustoLentes:         req.CustoLentes,
		Usuario:             req.Usuario,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, toPedidoResponse(sla.PedidoView{Pedido: *p}))
}

// Dashboard returns the aggregated metrics snapshot of the filtered set.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	snapshot, err := h.service.Dashboard(r.Context(), criteria)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, snapshot)
}

type eventoResponse struct {
	ID             uuid.UUID          `json:"id"`
	StatusAnterior model.StatusPedido `json:"status_anterior"`
	StatusNovo     model.StatusPedido `json:"status_novo"`
	Usuario        string             `json:"usuario"`
	Observacao     string             `json:"observacao,omitempty"`
	CriadoEm       string             `json:"criado_em"`
}

// Timeline returns the lifecycle events of a pedido.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := pedidoID(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	eventos, err := h.service.Timeline(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]eventoResponse, 0, len(eventos))
	for _, e := range eventos {
		resp = append(resp, eventoResponse{
			ID:             e.ID,
			StatusAnterior: e.StatusAnterior,
			StatusNovo:     e.StatusNovo,
			Usuario:        e.Usuario,
			Observacao:     e.Observacao,
			CriadoEm:       e.CriadoEm.Format(time.RFC3339),
		})
	}

	writeJSON(w, resp)
}

type transitionRequest struct {
	Usuario    string `json:"usuario"`
	Observacao string `json:"observacao"`
	Motivo     string `json:"motivo"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID, req transitionRequest) (*model.Pedido, error)) {
	id, err := pedidoID(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req transitionRequest
	if r.Body != nil {
		// Body is optional for transitions; malformed JSON is still an error.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	if req.Usuario == "" {
		http.Error(w, "usuario is required", http.StatusBadRequest)
		return
	}

	p, err := fn(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, toPedidoResponse(sla.PedidoView{Pedido: *p}))
}

// Advance moves a pedido to the next status.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, req transitionRequest) (*model.Pedido, error) {
		return h.service.Advance(ctx, id, req.Usuario, req.Observacao)
	})
}

// Regress moves a pedido to the previous status.
func (h *Handler) Regress(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, req transitionRequest) (*model.Pedido, error) {
		return h.service.Regress(ctx, id, req.Usuario, req.Observacao)
	})
}

// Finalize closes a delivered pedido.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, req transitionRequest) (*model.Pedido, error) {
		return h.service.Finalize(ctx, id, req.Usuario, req.Observacao)
	})
}

// Cancel cancels a pedido.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, req transitionRequest) (*model.Pedido, error) {
		return h.service.Cancel(ctx, id, req.Motivo, req.Usuario)
	})
}

type paymentRequest struct {
	DataPagamento  string `json:"data_pagamento"`
	FormaPagamento string `json:"forma_pagamento"`
	Usuario        string `json:"usuario"`
}

// ConfirmPayment records a payment and moves the pedido to PAGO.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pedidoID(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Usuario == "" {
		http.Error(w, "usuario is required", http.StatusBadRequest)
		return
	}

	data := time.Now().In(sla.Location)
	if req.DataPagamento != "" {
		data, err = time.ParseInLocation("2006-01-02", req.DataPagamento, sla.Location)
		if err != nil {
			http.Error(w, "data_pagamento: expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	p, err := h.service.ConfirmPayment(r.Context(), id, data, req.FormaPagamento, req.Usuario)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, toPedidoResponse(sla.PedidoView{Pedido: *p}))
}
