package repo

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/utils"
)

// wireID accepts numeric or string identifiers.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = wireID(n.String())
	return nil
}

type timerPayload struct {
	OccurrenceID       wireID   `json:"idOcorrencia"`
	Status             string   `json:"status"`
	OpenedAt           string   `json:"dataHoraAbertura"`
	DispatchedAt       string   `json:"dataHoraDespacho"`
	ArrivedAt          string   `json:"dataHoraChegada"`
	ConcludedAt        string   `json:"dataHoraFechamento"`
	ReturnedAt         string   `json:"dataHoraRetorno"`
	TotalElapsed       *float64 `json:"tempoTotalDecorridoMinutos"`
	TravelToArrival    *float64 `json:"tempoAteChegadaMinutos"`
	RemainingToArrival *float64 `json:"tempoRestanteAteChegadaMinutos"`
	ReturnElapsed      *float64 `json:"tempoRetornoDecorridoMinutos"`
	ReturnRemaining    *float64 `json:"tempoRestanteRetornoMinutos"`
	ReturnedToBase     *bool    `json:"retornouBase"`
	SLAMinutes         *float64 `json:"slaMinutos"`
	Remaining          *float64 `json:"tempoRestanteMinutos"`
	SLAAtRisk          *bool    `json:"slaEmRisco"`
	SLAExceeded        *bool    `json:"slaExcedido"`
	ElapsedSLA         *float64 `json:"tempoSlaDecorridoMinutos"`
	WasDispatched      *bool    `json:"foiDespachada"`
	ArrivedOnScene     *bool    `json:"chegouLocal"`
	WasConcluded       *bool    `json:"foiConcluida"`
	VehiclePlate       string   `json:"placaAmbulancia"`
	DistanceKm         *float64 `json:"distanciaKm"`
	TotalFormatted     string   `json:"tempoTotalFormatado"`
	RemainingFormatted string   `json:"tempoRestanteFormatado"`
}

func (p timerPayload) snapshot(loc *time.Location) models.Snapshot {
	snap := models.Snapshot{
		OccurrenceID:              string(p.OccurrenceID),
		Status:                    statusLabel(p.Status),
		SLAMinutes:                p.SLAMinutes,
		DispatchedAt:              optionalTime(p.DispatchedAt, loc),
		ArrivedAt:                 optionalTime(p.ArrivedAt, loc),
		ConcludedAt:               optionalTime(p.ConcludedAt, loc),
		ReturnedAt:                optionalTime(p.ReturnedAt, loc),
		WasDispatched:             flag(p.WasDispatched),
		ArrivedOnScene:            flag(p.ArrivedOnScene),
		WasConcluded:              flag(p.WasConcluded),
		ReturnedToBase:            flag(p.ReturnedToBase),
		TravelToArrivalMinutes:    p.TravelToArrival,
		RemainingToArrivalMinutes: p.RemainingToArrival,
		ReturnElapsedMinutes:      p.ReturnElapsed,
		ReturnRemainingMinutes:    p.ReturnRemaining,
		TotalElapsedMinutes:       p.TotalElapsed,
		RemainingMinutes:          p.Remaining,
		DistanceKm:                p.DistanceKm,
		VehiclePlate:              p.VehiclePlate,
		SLAExceeded:               flag(p.SLAExceeded),
		SLAAtRisk:                 flag(p.SLAAtRisk),
		TotalFormatted:            p.TotalFormatted,
		RemainingFormatted:        p.RemainingFormatted,
	}
	if opened := optionalTime(p.OpenedAt, loc); opened != nil {
		snap.OpenedAt = *opened
	}
	if p.ElapsedSLA != nil {
		snap.ElapsedSLAMinutes = *p.ElapsedSLA
	}
	return snap.Normalize()
}

type historyPayload struct {
	ID             wireID `json:"id"`
	OccurrenceID   wireID `json:"ocorrenciaId"`
	Action         string `json:"acao"`
	PreviousStatus string `json:"statusAnterior"`
	NewStatus      string `json:"statusNovo"`
	Description    string `json:"descricaoAcao"`
	Timestamp      string `json:"dataHora"`
	OccurrenceType string `json:"tipoOcorrencia"`
	ActorName      string `json:"usuarioNome"`
	ActorRole      string `json:"usuarioPerfil"`
	VehiclePlate   string `json:"placaAmbulancia"`
	VehicleAction  string `json:"acaoAmbulancia"`
}

func (p historyPayload) event(loc *time.Location) models.HistoryEvent {
	event := models.HistoryEvent{
		ID:             string(p.ID),
		OccurrenceID:   string(p.OccurrenceID),
		Action:         historyAction(p.Action),
		PreviousStatus: statusLabel(p.PreviousStatus),
		NewStatus:      statusLabel(p.NewStatus),
		Description:    p.Description,
		ActorName:      p.ActorName,
		ActorRole:      p.ActorRole,
		OccurrenceType: p.OccurrenceType,
		VehiclePlate:   p.VehiclePlate,
		VehicleAction:  p.VehicleAction,
	}
	if ts := optionalTime(p.Timestamp, loc); ts != nil {
		event.Timestamp = *ts
	}
	return event
}

type occurrencePayload struct {
	ID       wireID `json:"id"`
	Status   string `json:"status"`
	Type     string `json:"tipoOcorrencia"`
	Severity string `json:"gravidade"`
}

// The dispatch API speaks Portuguese; English names are accepted as well.
var upstreamStatuses = map[string]models.Phase{
	"ABERTA":         models.PhaseOpen,
	"DESPACHADA":     models.PhaseDispatched,
	"EM_ATENDIMENTO": models.PhaseInService,
	"CONCLUIDA":      models.PhaseConcluded,
	"CANCELADA":      models.PhaseCancelled,
}

var upstreamActions = map[string]models.HistoryAction{
	"ABERTURA":         models.ActionOpened,
	"DESPACHO":         models.ActionDispatched,
	"CHEGADA":          models.ActionArrived,
	"CONCLUSAO":        models.ActionConcluded,
	"ALTERACAO_STATUS": models.ActionStatusChange,
	"CANCELAMENTO":     models.ActionCancelled,
}

func upstreamStatus(value string) string {
	key := strings.ToUpper(strings.TrimSpace(value))
	if phase, ok := upstreamStatuses[key]; ok {
		return string(phase)
	}
	return value
}

// statusLabel translates known statuses and keeps anything else verbatim.
func statusLabel(value string) string {
	if value == "" {
		return ""
	}
	return upstreamStatus(value)
}

// historyAction translates known actions; unknown ones are preserved.
func historyAction(value string) models.HistoryAction {
	key := strings.ToUpper(strings.TrimSpace(value))
	if action, ok := upstreamActions[key]; ok {
		return action
	}
	return models.HistoryAction(key)
}

func optionalTime(value string, loc *time.Location) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	t, err := utils.ParseTimestamp(value, loc)
	if err != nil {
		return nil
	}
	return &t
}

func flag(v *bool) bool {
	return v != nil && *v
}
