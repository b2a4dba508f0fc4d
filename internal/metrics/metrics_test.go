package metrics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellooticas/desenrola-dcl/internal/model"
	"github.com/mellooticas/desenrola-dcl/internal/sla"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, sla.Location)
}

func money(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, date(2024, 3, 10))

	assert.Equal(t, 0, s.TotalPedidos)
	assert.True(t, s.Receita.IsZero())
	assert.True(t, s.Custo.IsZero())
	assert.True(t, s.Margem.IsZero())
	assert.True(t, s.MargemPercentual.IsZero())
	assert.True(t, s.TicketMedio.IsZero())
	// No data must not read as failing: compliance defaults to 100.
	assert.Equal(t, float64(100), s.SLACompliancePercentual)
	assert.Empty(t, s.PorLaboratorio)
	assert.Empty(t, s.Tendencia)
}

func TestAggregate_WarrantyTreatment(t *testing.T) {
	now := date(2024, 3, 10)
	criado := date(2024, 3, 5)

	pedidos := []model.Pedido{
		{EhGarantia: true, ValorVenda: money("999"), CustoLentes: money("50"), CriadoEm: criado},
		{EhGarantia: true, CustoLentes: money("60"), CriadoEm: criado},
		{EhGarantia: true, CustoLentes: money("70"), CriadoEm: criado},
		{ValorVenda: money("400"), CustoLentes: money("100"), CriadoEm: criado},
		{ValorVenda: money("600"), CustoLentes: money("120"), CriadoEm: criado},
	}

	s := Aggregate(pedidos, now)

	assert.Equal(t, 5, s.TotalPedidos)
	// Warranty pedidos never contribute revenue, even with a recorded
	// value, but their lens cost still counts.
	assert.True(t, s.Receita.Equal(decimal.NewFromInt(1000)), "receita = %s", s.Receita)
	assert.True(t, s.Custo.Equal(decimal.NewFromInt(400)), "custo = %s", s.Custo)
	assert.True(t, s.Margem.Equal(decimal.NewFromInt(600)), "margem = %s", s.Margem)
	assert.True(t, s.MargemPercentual.Equal(decimal.NewFromInt(60)), "margem%% = %s", s.MargemPercentual)
	// Average ticket divides by paid pedidos only, not by total count.
	assert.True(t, s.TicketMedio.Equal(decimal.NewFromInt(500)), "ticket = %s", s.TicketMedio)
}

func TestAggregate_ZeroRevenueGuards(t *testing.T) {
	now := date(2024, 3, 10)
	pedidos := []model.Pedido{
		{EhGarantia: true, CustoLentes: money("80"), CriadoEm: date(2024, 3, 5)},
	}

	s := Aggregate(pedidos, now)

	assert.True(t, s.Receita.IsZero())
	assert.True(t, s.MargemPercentual.IsZero(), "margem%% must be zero-guarded")
	assert.True(t, s.TicketMedio.IsZero())
	assert.True(t, s.Margem.Equal(decimal.NewFromInt(-80)))
}

func TestAggregate_SLACompliance(t *testing.T) {
	now := date(2024, 3, 10)
	onTime := date(2024, 3, 12)
	dueToday := date(2024, 3, 10)
	late := date(2024, 3, 8)

	pedidos := []model.Pedido{
		{DataSLALaboratorio: &onTime, CriadoEm: now},
		{DataSLALaboratorio: &dueToday, CriadoEm: now}, // zero days still compliant
		{DataSLALaboratorio: &late, CriadoEm: now},
		{CriadoEm: now}, // no SLA date: excluded from both sides
	}

	s := Aggregate(pedidos, now)

	assert.InDelta(t, 66.66, s.SLACompliancePercentual, 0.01)
}

func TestAggregate_LabRanking(t *testing.T) {
	now := date(2024, 3, 10)
	onTime := date(2024, 3, 20)
	late := date(2024, 3, 1)

	labA := uuid.New()
	labB := uuid.New()

	pedidos := []model.Pedido{
		{LaboratorioID: labA, LaboratorioNome: "Atrasado Lentes", DataSLALaboratorio: &late, CriadoEm: now},
		{LaboratorioID: labA, LaboratorioNome: "Atrasado Lentes", DataSLALaboratorio: &onTime, CriadoEm: now},
		{LaboratorioID: labB, LaboratorioNome: "Express", DataSLALaboratorio: &onTime, CriadoEm: now, ValorVenda: money("300")},
	}

	s := Aggregate(pedidos, now)

	require.Len(t, s.PorLaboratorio, 2)
	assert.Equal(t, labB, s.PorLaboratorio[0].ID, "best compliance ranks first")
	assert.Equal(t, float64(100), s.PorLaboratorio[0].SLACompliancePercentual)
	assert.Equal(t, float64(50), s.PorLaboratorio[1].SLACompliancePercentual)
	assert.Equal(t, 1, s.PorLaboratorio[1].Atrasados)
	assert.True(t, s.PorLaboratorio[0].Receita.Equal(decimal.NewFromInt(300)))
}

func TestAggregate_StatusCounts(t *testing.T) {
	now := date(2024, 3, 10)
	pedidos := []model.Pedido{
		{Status: model.StatusProducao, CriadoEm: now},
		{Status: model.StatusProducao, CriadoEm: now},
		{Status: model.StatusPronto, CriadoEm: now},
	}

	s := Aggregate(pedidos, now)

	assert.Equal(t, 2, s.PorStatus[model.StatusProducao])
	assert.Equal(t, 1, s.PorStatus[model.StatusPronto])
}

func TestAggregate_OrderIndependent(t *testing.T) {
	now := date(2024, 3, 10)
	slaDate := date(2024, 3, 12)
	pedidos := []model.Pedido{
		{ValorVenda: money("100"), CriadoEm: date(2024, 3, 1), DataSLALaboratorio: &slaDate},
		{ValorVenda: money("200"), CriadoEm: date(2024, 3, 5)},
		{EhGarantia: true, CustoLentes: money("30"), CriadoEm: date(2024, 3, 8)},
	}
	reversed := []model.Pedido{pedidos[2], pedidos[1], pedidos[0]}

	assert.Equal(t, Aggregate(pedidos, now), Aggregate(reversed, now))
}

func TestTrend_DailyBuckets(t *testing.T) {
	now := date(2024, 3, 10)
	pedidos := []model.Pedido{
		{ValorVenda: money("100"), CustoLentes: money("40"), CriadoEm: date(2024, 3, 1)},
		{ValorVenda: money("200"), CriadoEm: date(2024, 3, 1)},
		{ValorVenda: money("300"), CriadoEm: date(2024, 3, 5)},
	}

	s := Aggregate(pedidos, now)

	require.Len(t, s.Tendencia, 2)
	assert.Equal(t, date(2024, 3, 1), s.Tendencia[0].Inicio)
	assert.Equal(t, 2, s.Tendencia[0].Total)
	assert.True(t, s.Tendencia[0].Receita.Equal(decimal.NewFromInt(300)))
	assert.True(t, s.Tendencia[0].Margem.Equal(decimal.NewFromInt(260)))
	assert.Equal(t, date(2024, 3, 5), s.Tendencia[1].Inicio)
}

func TestTrend_WeeklyBucketsBeyondThreshold(t *testing.T) {
	now := date(2024, 3, 10)
	// 2024-02-01 (Thu) to 2024-03-01 (Fri): 29 days, well past the
	// fifteen-day threshold.
	pedidos := []model.Pedido{
		{CriadoEm: date(2024, 2, 1)},
		{CriadoEm: date(2024, 2, 2)},
		{CriadoEm: date(2024, 3, 1)},
	}

	s := Aggregate(pedidos, now)

	require.Len(t, s.Tendencia, 2)
	// Both February pedidos fall in the week starting Monday 2024-01-29.
	assert.Equal(t, date(2024, 1, 29), s.Tendencia[0].Inicio)
	assert.Equal(t, 2, s.Tendencia[0].Total)
	assert.Equal(t, date(2024, 2, 26), s.Tendencia[1].Inicio)
	assert.Equal(t, 1, s.Tendencia[1].Total)
}

func TestTrend_FifteenDaySpanStaysDaily(t *testing.T) {
	now := date(2024, 3, 20)
	pedidos := []model.Pedido{
		{CriadoEm: date(2024, 3, 1)},
		{CriadoEm: date(2024, 3, 16)}, // span exactly 15 days
	}

	s := Aggregate(pedidos, now)

	require.Len(t, s.Tendencia, 2)
	assert.Equal(t, date(2024, 3, 1), s.Tendencia[0].Inicio)
	assert.Equal(t, date(2024, 3, 16), s.Tendencia[1].Inicio)
}
