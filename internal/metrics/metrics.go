// Package metrics folds a filtered pedido collection into the dashboard
// snapshot. Every function here is pure: same input set, same output,
// regardless of input ordering, with a zeroed snapshot for empty input.
package metrics

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mellooticas/desenrola-dcl/internal/model"
	"github.com/mellooticas/desenrola-dcl/internal/sla"
)

// trendWeeklyThresholdDays is the span above which the trend series
// switches from daily to weekly buckets.
const trendWeeklyThresholdDays = 15

var cem = decimal.NewFromInt(100)

// Snapshot is the derived metrics view of a pedido set. It is recomputed
// on demand and never persisted.
type Snapshot struct {
	TotalPedidos int `json:"total_pedidos"`

	// Receita sums ValorVenda over non-warranty pedidos only: a warranty
	// pedido is a free replacement and never contributes revenue, even
	// when a value is recorded on it. Custo sums CustoLentes over all
	// pedidos, warranty included, because warranty work still consumes
	// lab capacity and material.
	Receita          decimal.Decimal `json:"receita"`
	Custo            decimal.Decimal `json:"custo"`
	Margem           decimal.Decimal `json:"margem"`
	MargemPercentual decimal.Decimal `json:"margem_percentual"`
	TicketMedio      decimal.Decimal `json:"ticket_medio"`

	// SLACompliancePercentual covers only pedidos carrying a lab SLA
	// date; pedidos without one are excluded from both sides of the
	// ratio. With no denominator it defaults to 100 by policy: no data
	// must not read as failing.
	SLACompliancePercentual float64 `json:"sla_compliance_percentual"`

	PorStatus      map[model.StatusPedido]int `json:"por_status"`
	PorLaboratorio []Breakdown                `json:"por_laboratorio"`
	PorLoja        []Breakdown                `json:"por_loja"`
	PorClasse      []Breakdown                `json:"por_classe"`

	Tendencia []TrendBucket `json:"tendencia"`
}

// Breakdown is a per-group slice of the snapshot. Compliance fields are
// populated for lab groupings only.
type Breakdown struct {
	ID      uuid.UUID       `json:"id"`
	Nome    string          `json:"nome"`
	Total   int             `json:"total"`
	Receita decimal.Decimal `json:"receita"`

	NoPrazo                 int     `json:"no_prazo"`
	Atrasados               int     `json:"atrasados"`
	SLACompliancePercentual float64 `json:"sla_compliance_percentual"`
}

// TrendBucket is one point of the time-bucketed trend series, keyed by the
// bucket's first calendar day.
type TrendBucket struct {
	Inicio  time.Time       `json:"inicio"`
	Total   int             `json:"total"`
	Receita decimal.Decimal `json:"receita"`
	Custo   decimal.Decimal `json:"custo"`
	Margem  decimal.Decimal `json:"margem"`
}

// Aggregate computes the full snapshot of an already-filtered pedido set
// as of now. Callers wanting a consistent multi-metric view should fetch
// the set once and aggregate that single snapshot.
func Aggregate(pedidos []model.Pedido, now time.Time) Snapshot {
	s := Snapshot{
		PorStatus:               make(map[model.StatusPedido]int),
		SLACompliancePercentual: 100,
	}

	var comValor int64
	var comSLA, noPrazo int

	labs := newGrouper()
	lojas := newGrouper()
	classes := newGrouper()

	for i := range pedidos {
		p := &pedidos[i]
		s.TotalPedidos++
		s.PorStatus[p.Status]++

		if !p.EhGarantia && p.ValorVenda != nil {
			s.Receita = s.Receita.Add(*p.ValorVenda)
			comValor++
		}
		if p.CustoLentes != nil {
			s.Custo = s.Custo.Add(*p.CustoLentes)
		}

		emDia := false
		if p.DataSLALaboratorio != nil {
			comSLA++
			if sla.DaysUntil(*p.DataSLALaboratorio, now) >= 0 {
				noPrazo++
				emDia = true
			}
		}

		labs.add(p.LaboratorioID, p.LaboratorioNome, p, p.DataSLALaboratorio != nil, emDia)
		lojas.add(p.LojaID, p.LojaNome, p, false, false)
		classes.add(p.ClasseLenteID, p.ClasseNome, p, false, false)
	}

	s.Margem = s.Receita.Sub(s.Custo)
	if s.Receita.IsPositive() {
		s.MargemPercentual = s.Margem.Div(s.Receita).Mul(cem)
	}
	if comValor > 0 {
		s.TicketMedio = s.Receita.Div(decimal.NewFromInt(comValor))
	}
	if comSLA > 0 {
		s.SLACompliancePercentual = compliancePercent(noPrazo, comSLA)
	}

	s.PorLaboratorio = labs.ranked()
	s.PorLoja = lojas.byVolume()
	s.PorClasse = classes.byVolume()
	s.Tendencia = trend(pedidos)

	return s
}

func compliancePercent(noPrazo, total int) float64 {
	return float64(noPrazo) / float64(total) * 100
}

type grouper struct {
	groups map[uuid.UUID]*Breakdown
}

func newGrouper() *grouper {
	return &grouper{groups: make(map[uuid.UUID]*Breakdown)}
}

func (g *grouper) add(id uuid.UUID, nome string, p *model.Pedido, temSLA, emDia bool) {
	b, ok := g.groups[id]
	if !ok {
		b = &Breakdown{ID: id, Nome: nome}
		g.groups[id] = b
	}
	b.Total++
	if !p.EhGarantia && p.ValorVenda != nil {
		b.Receita = b.Receita.Add(*p.ValorVenda)
	}
	if temSLA {
		if emDia {
			b.NoPrazo++
		} else {
			b.Atrasados++
		}
	}
}

func (g *grouper) slice() []Breakdown {
	out := make([]Breakdown, 0, len(g.groups))
	for _, b := range g.groups {
		if n := b.NoPrazo + b.Atrasados; n > 0 {
			b.SLACompliancePercentual = compliancePercent(b.NoPrazo, n)
		} else {
			b.SLACompliancePercentual = 100
		}
		out = append(out, *b)
	}
	return out
}

// ranked orders lab groups for the compliance ranking: best compliance
// first, volume and name as tiebreaks.
func (g *grouper) ranked() []Breakdown {
	out := g.slice()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SLACompliancePercentual != out[j].SLACompliancePercentual {
			return out[i].SLACompliancePercentual > out[j].SLACompliancePercentual
		}
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Nome < out[j].Nome
	})
	return out
}

func (g *grouper) byVolume() []Breakdown {
	out := g.slice()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Nome < out[j].Nome
	})
	return out
}

// trend buckets pedidos by CriadoEm: daily buckets for short spans, weekly
// buckets (Monday start) once the set spans more than fifteen days.
func trend(pedidos []model.Pedido) []TrendBucket {
	if len(pedidos) == 0 {
		return nil
	}

	min := sla.DateOf(pedidos[0].CriadoEm)
	max := min
	for i := range pedidos[1:] {
		d := sla.DateOf(pedidos[i+1].CriadoEm)
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}

	weekly := sla.DaysUntil(max, min) > trendWeeklyThresholdDays

	buckets := make(map[time.Time]*TrendBucket)
	for i := range pedidos {
		p := &pedidos[i]
		key := sla.DateOf(p.CriadoEm)
		if weekly {
			key = weekStart(key)
		}

		b, ok := buckets[key]
		if !ok {
			b = &TrendBucket{Inicio: key}
			buckets[key] = b
		}
		b.Total++
		if !p.EhGarantia && p.ValorVenda != nil {
			b.Receita = b.Receita.Add(*p.ValorVenda)
		}
		if p.CustoLentes != nil {
			b.Custo = b.Custo.Add(*p.CustoLentes)
		}
	}

	out := make([]TrendBucket, 0, len(buckets))
	for _, b := range buckets {
		b.Margem = b.Receita.Sub(b.Custo)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Inicio.Before(out[j].Inicio) })
	return out
}

func weekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
