// Package filter composes pedido list criteria into a single predicate.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mellooticas/desenrola-dcl/internal/model"
	"github.com/mellooticas/desenrola-dcl/internal/sla"
)

// ErrInvalidInput is the sentinel matched by errors.Is for every rejected
// criteria value.
var ErrInvalidInput = errors.New("invalid filter input")

// InvalidInputError describes a criteria field rejected before predicate
// construction. A bad field never degrades into a match-everything filter.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("filter field %s: %s", e.Field, e.Reason)
}

// Is reports that every InvalidInputError matches ErrInvalidInput.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Date range presets resolved relative to "today" at build time.
const (
	PeriodoTodos         = ""
	PeriodoHoje          = "hoje"
	PeriodoEstaSemana    = "esta_semana"
	PeriodoEsteMes       = "este_mes"
	PeriodoUltimoMes     = "ultimo_mes"
	PeriodoUltimos7Dias  = "ultimos_7_dias"
	PeriodoUltimos30Dias = "ultimos_30_dias"
	PeriodoCustom        = "custom"
)

// Criteria is the multi-field pedido filter. Empty fields impose no
// constraint.
type Criteria struct {
	// Busca matches case-insensitively against cliente, laboratório and
	// loja names.
	Busca string

	NumeroSequencial    string
	NumeroOSFisica      string
	NumeroOSLaboratorio string
	Telefone            string

	Status        model.StatusPedido
	Prioridade    model.Prioridade
	LojaID        uuid.UUID
	LaboratorioID uuid.UUID
	ClasseLenteID uuid.UUID

	// SituacaoSLA filters on the classification of the lab SLA deadline.
	SituacaoSLA sla.Situation

	Periodo    string
	DataInicio *time.Time
	DataFim    *time.Time
}

// Predicate reports whether a pedido matches the criteria it was built
// from.
type Predicate func(*model.Pedido) bool

// Build validates the criteria and composes every populated field into one
// AND-combined predicate, so filtering is a single pass over the pedido
// collection. Date presets are resolved against now once, here, not per
// pedido.
func Build(c Criteria, now time.Time) (Predicate, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	var preds []Predicate

	if busca := strings.ToLower(strings.TrimSpace(c.Busca)); busca != "" {
		preds = append(preds, func(p *model.Pedido) bool {
			return strings.Contains(strings.ToLower(p.ClienteNome), busca) ||
				strings.Contains(strings.ToLower(p.LaboratorioNome), busca) ||
				strings.Contains(strings.ToLower(p.LojaNome), busca)
		})
	}

	if n := strings.TrimSpace(c.NumeroSequencial); n != "" {
		preds = append(preds, func(p *model.Pedido) bool {
			return strings.Contains(strconv.FormatInt(p.NumeroSequencial, 10), n)
		})
	}
	if os := strings.ToLower(strings.TrimSpace(c.NumeroOSFisica)); os != "" {
		preds = append(preds, func(p *model.Pedido) bool {
			return strings.Contains(strings.ToLower(p.NumeroOSFisica), os)
		})
	}
	if os := strings.ToLower(strings.TrimSpace(c.NumeroOSLaboratorio)); os != "" {
		preds = append(preds, func(p *model.Pedido) bool {
			return strings.Contains(strings.ToLower(p.NumeroOSLaboratorio), os)
		})
	}
	if tel := digitsOf(c.Telefone); tel != "" {
		preds = append(preds, func(p *model.Pedido) bool {
			return strings.Contains(digitsOf(p.ClienteTelefone), tel)
		})
	}

	if c.Status != "" {
		preds = append(preds, func(p *model.Pedido) bool { return p.Status == c.Status })
	}
	if c.Prioridade != "" {
		preds = append(preds, func(p *model.Pedido) bool { return p.Prioridade == c.Prioridade })
	}
	if c.LojaID != uuid.Nil {
		preds = append(preds, func(p *model.Pedido) bool { return p.LojaID == c.LojaID })
	}
	if c.LaboratorioID != uuid.Nil {
		preds = append(preds, func(p *model.Pedido) bool { return p.LaboratorioID == c.LaboratorioID })
	}
	if c.ClasseLenteID != uuid.Nil {
		preds = append(preds, func(p *model.Pedido) bool { return p.ClasseLenteID == c.ClasseLenteID })
	}

	if c.SituacaoSLA != "" {
		preds = append(preds, func(p *model.Pedido) bool {
			if p.DataSLALaboratorio == nil {
				return false
			}
			return sla.Classify(sla.DaysUntil(*p.DataSLALaboratorio, now)) == c.SituacaoSLA
		})
	}

	if c.Periodo != PeriodoTodos || c.DataInicio != nil || c.DataFim != nil {
		inicio, fim, err := resolvePeriodo(c, now)
		if err != nil {
			return nil, err
		}
		preds = append(preds, func(p *model.Pedido) bool {
			d := sla.DateOf(p.CriadoEm)
			return !d.Before(inicio) && !d.After(fim)
		})
	}

	return func(p *model.Pedido) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}, nil
}

func validate(c Criteria) error {
	if n := strings.TrimSpace(c.NumeroSequencial); n != "" {
		if _, err := strconv.ParseInt(n, 10, 64); err != nil {
			return &InvalidInputError{Field: "numero_sequencial", Reason: "must be numeric"}
		}
	}
	if tel := strings.TrimSpace(c.Telefone); tel != "" && digitsOf(tel) == "" {
		return &InvalidInputError{Field: "telefone", Reason: "must contain digits"}
	}
	return nil
}

// resolvePeriodo maps a named preset to concrete closed [inicio, fim]
// calendar-date bounds. A custom preset without both bounds is an input
// error, never an implicit "no filter".
func resolvePeriodo(c Criteria, now time.Time) (inicio, fim time.Time, err error) {
	hoje := sla.DateOf(now)

	switch c.Periodo {
	case PeriodoHoje:
		return hoje, hoje, nil
	case PeriodoEstaSemana:
		// Week starts on Sunday, matching the kanban filter bar.
		return hoje.AddDate(0, 0, -int(hoje.Weekday())), hoje, nil
	case PeriodoEsteMes:
		return time.Date(hoje.Year(), hoje.Month(), 1, 0, 0, 0, 0, sla.Location), hoje, nil
	case PeriodoUltimoMes:
		primeiroDesteMes := time.Date(hoje.Year(), hoje.Month(), 1, 0, 0, 0, 0, sla.Location)
		return primeiroDesteMes.AddDate(0, -1, 0), primeiroDesteMes.AddDate(0, 0, -1), nil
	case PeriodoUltimos7Dias:
		return hoje.AddDate(0, 0, -7), hoje, nil
	case PeriodoUltimos30Dias:
		return hoje.AddDate(0, 0, -30), hoje, nil
	case PeriodoCustom, PeriodoTodos:
		// Explicit bounds without a named preset behave as custom.
		if c.DataInicio == nil || c.DataFim == nil {
			return time.Time{}, time.Time{}, &InvalidInputError{Field: "periodo", Reason: "custom period requires data_inicio and data_fim"}
		}
		inicio, fim = sla.DateOf(*c.DataInicio), sla.DateOf(*c.DataFim)
		if fim.Before(inicio) {
			return time.Time{}, time.Time{}, &InvalidInputError{Field: "periodo", Reason: "data_fim before data_inicio"}
		}
		return inicio, fim, nil
	default:
		return time.Time{}, time.Time{}, &InvalidInputError{Field: "periodo", Reason: "unknown preset " + c.Periodo}
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
