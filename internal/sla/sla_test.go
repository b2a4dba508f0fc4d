package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mellooticas/desenrola-dcl/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		days int
		want Situation
	}{
		{"well ahead", 30, SituationNoPrazo},
		{"exactly five days", 5, SituationNoPrazo},
		{"four days", 4, SituationAtencao},
		{"two days", 2, SituationAtencao},
		{"one day", 1, SituationAtencao},
		{"due today", 0, SituationAtrasado},
		{"one day late", -1, SituationCritico},
		{"long overdue", -30, SituationCritico},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.days))
		})
	}
}

func TestDaysUntil(t *testing.T) {
	today := date(2024, 3, 10)

	tests := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"same day", date(2024, 3, 10), 0},
		{"tomorrow", date(2024, 3, 11), 1},
		{"yesterday", date(2024, 3, 9), -1},
		{"next week", date(2024, 3, 17), 7},
		// 02:30 UTC is still the previous calendar day in São Paulo.
		{"utc instant before midnight", time.Date(2024, 3, 12, 2, 30, 0, 0, time.UTC), 1},
		{"late evening same day", time.Date(2024, 3, 10, 23, 59, 0, 0, Location), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.deadline, today))
		})
	}
}

func TestDaysUntil_IgnoresTimeOfDay(t *testing.T) {
	deadline := date(2024, 3, 11)
	morning := time.Date(2024, 3, 10, 0, 1, 0, 0, Location)
	night := time.Date(2024, 3, 10, 23, 59, 0, 0, Location)

	assert.Equal(t, DaysUntil(deadline, morning), DaysUntil(deadline, night))
}

func TestComputeDeadlines(t *testing.T) {
	adj := Adjustment{UrgenteFloorDays: 2, AltaReducaoDays: 1, BaixaAdicaoDays: 2}
	created := date(2024, 1, 1)

	tests := []struct {
		name          string
		prioridade    model.Prioridade
		labLead       int
		promiseDays   int
		wantLabSLA    time.Time
		wantPrometida time.Time
	}{
		{"normal uses base lead", model.PrioridadeNormal, 5, 7, date(2024, 1, 6), date(2024, 1, 8)},
		{"urgente clamps to floor", model.PrioridadeUrgente, 5, 7, date(2024, 1, 3), date(2024, 1, 3)},
		{"urgente keeps shorter base", model.PrioridadeUrgente, 1, 7, date(2024, 1, 2), date(2024, 1, 3)},
		{"alta subtracts reduction", model.PrioridadeAlta, 5, 7, date(2024, 1, 5), date(2024, 1, 7)},
		{"alta never beats urgente floor", model.PrioridadeAlta, 2, 7, date(2024, 1, 3), date(2024, 1, 7)},
		{"baixa adds slack", model.PrioridadeBaixa, 5, 7, date(2024, 1, 8), date(2024, 1, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labSLA, prometida := ComputeDeadlines(created, tt.prioridade, tt.labLead, tt.promiseDays, adj)
			assert.Equal(t, tt.wantLabSLA, labSLA, "lab SLA date")
			assert.Equal(t, tt.wantPrometida, prometida, "promise date")
		})
	}
}

func TestComputeDeadlines_Independent(t *testing.T) {
	adj := Adjustment{UrgenteFloorDays: 2}
	created := date(2024, 1, 1)

	// A promise shorter than the lab SLA stays as configured: the
	// calculator never reorders the two deadlines.
	labSLA, prometida := ComputeDeadlines(created, model.PrioridadeNormal, 10, 3, adj)
	assert.Equal(t, date(2024, 1, 11), labSLA)
	assert.Equal(t, date(2024, 1, 4), prometida)
	assert.True(t, prometida.Before(labSLA))
}

func TestAnnotate(t *testing.T) {
	now := date(2024, 3, 10)
	slaDate := date(2024, 3, 10)
	prometida := date(2024, 3, 20)

	p := model.Pedido{
		DataSLALaboratorio: &slaDate,
		DataPrometida:      &prometida,
	}

	v := Annotate(p, now)

	if assert.NotNil(t, v.DiasParaVencerSLA) {
		assert.Equal(t, 0, *v.DiasParaVencerSLA)
	}
	if assert.NotNil(t, v.DiasParaVencerPrometido) {
		assert.Equal(t, 10, *v.DiasParaVencerPrometido)
	}

	// The two deadlines classify independently and never merge.
	assert.Equal(t, SituationAtrasado, v.SituacaoSLA)
	assert.Equal(t, SituationNoPrazo, v.SituacaoPrometido)
}

func TestAnnotate_MissingDeadlines(t *testing.T) {
	v := Annotate(model.Pedido{}, date(2024, 3, 10))

	assert.Nil(t, v.DiasParaVencerSLA)
	assert.Nil(t, v.DiasParaVencerPrometido)
	assert.Empty(t, v.SituacaoSLA)
	assert.Empty(t, v.SituacaoPrometido)
}
