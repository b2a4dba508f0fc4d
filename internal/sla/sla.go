// Package sla derives deadlines and compliance situations for pedidos.
//
// All calendar arithmetic happens in one reference timezone so that a
// pedido never flips between due and overdue depending on the caller's
// clock near midnight.
package sla

import (
	"math"
	"time"

	"github.com/mellooticas/desenrola-dcl/internal/model"
)

// Location is the reference timezone for every calendar-date comparison.
var Location = loadLocation()

func loadLocation() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// Situation is the compliance bucket of a single deadline.
type Situation string

const (
	SituationNoPrazo  Situation = "no_prazo"
	SituationAtencao  Situation = "atencao"
	SituationAtrasado Situation = "atrasado"
	SituationCritico  Situation = "critico"
)

// Classification thresholds. These are policy constants, not configuration;
// callers wanting different cutoffs must wrap Classify, not parametrize it.
const (
	noPrazoMinDays = 5
	atencaoMinDays = 1
)

// Classify buckets a signed days-to-deadline value into a Situation.
// Zero means due today and already counts as atrasado.
func Classify(days int) Situation {
	switch {
	case days >= noPrazoMinDays:
		return SituationNoPrazo
	case days >= atencaoMinDays:
		return SituationAtencao
	case days == 0:
		return SituationAtrasado
	default:
		return SituationCritico
	}
}

// Adjustment is the priority-dependent modification of a base lead time.
type Adjustment struct {
	// UrgenteFloorDays is the lead time applied to URGENTE pedidos: a
	// floor, not a percentage cut, so an urgent deadline can never go
	// sub-day or negative.
	UrgenteFloorDays int
	AltaReducaoDays  int
	BaixaAdicaoDays  int
}

// LeadTimeDays applies the priority adjustment to a base lead time.
func (a Adjustment) LeadTimeDays(base int, p model.Prioridade) int {
	switch p {
	case model.PrioridadeUrgente:
		if base < a.UrgenteFloorDays {
			return base
		}
		return a.UrgenteFloorDays
	case model.PrioridadeAlta:
		d := base - a.AltaReducaoDays
		if d < a.UrgenteFloorDays {
			d = a.UrgenteFloorDays
		}
		return d
	case model.PrioridadeBaixa:
		return base + a.BaixaAdicaoDays
	default:
		return base
	}
}

// ComputeDeadlines derives the lab SLA date and the customer promise date.
// The two are computed independently from their own base lead times; the
// calculator never assumes the promise is the later of the two.
func ComputeDeadlines(createdAt time.Time, p model.Prioridade, labLeadDays, promiseDays int, adj Adjustment) (labSLA, prometida time.Time) {
	base := DateOf(createdAt)
	labSLA = base.AddDate(0, 0, adj.LeadTimeDays(labLeadDays, p))
	prometida = base.AddDate(0, 0, adj.LeadTimeDays(promiseDays, p))
	return labSLA, prometida
}

// DateOf truncates an instant to its calendar date in the reference
// timezone.
func DateOf(t time.Time) time.Time {
	y, m, d := t.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// DaysUntil returns the signed number of calendar days from today until
// the deadline. Negative means the deadline has passed, zero means due
// today. Both arguments are compared as dates, never as instants.
func DaysUntil(deadline, today time.Time) int {
	diff := DateOf(deadline).Sub(DateOf(today))
	return int(math.Round(diff.Hours() / 24))
}

// PedidoView is a pedido annotated with its derived temporal state for the
// presentation layer. The lab SLA and the customer promise are classified
// separately and never merged: a pedido can be on time with the customer
// while overdue with the lab.
type PedidoView struct {
	model.Pedido

	DiasParaVencerSLA       *int
	DiasParaVencerPrometido *int
	SituacaoSLA             Situation
	SituacaoPrometido       Situation
}

// Annotate computes the derived temporal fields of a pedido as of now.
// Situations stay empty when the corresponding deadline is absent.
func Annotate(p model.Pedido, now time.Time) PedidoView {
	v := PedidoView{Pedido: p}

	if p.DataSLALaboratorio != nil {
		d := DaysUntil(*p.DataSLALaboratorio, now)
		v.DiasParaVencerSLA = &d
		v.SituacaoSLA = Classify(d)
	}
	if p.DataPrometida != nil {
		d := DaysUntil(*p.DataPrometida, now)
		v.DiasParaVencerPrometido = &d
		v.SituacaoPrometido = Classify(d)
	}

	return v
}
