package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	timestampLayout = "2006-01-02T15:04:05"
	slaMinutes      = 15.0
	plate           = "LTK-2041"
)

// Simulated minutes at which an occurrence reaches each step.
const (
	dispatchAt = 2.0
	arriveAt   = 10.0
	concludeAt = 40.0
	returnAt   = 55.0
	cancelAt   = 5.0
)

type timerResponse struct {
	OccurrenceID       string   `json:"idOcorrencia"`
	Status             string   `json:"status"`
	OpenedAt           string   `json:"dataHoraAbertura"`
	DispatchedAt       string   `json:"dataHoraDespacho,omitempty"`
	ArrivedAt          string   `json:"dataHoraChegada,omitempty"`
	ConcludedAt        string   `json:"dataHoraFechamento,omitempty"`
	ReturnedAt         string   `json:"dataHoraRetorno,omitempty"`
	TotalElapsed       float64  `json:"tempoTotalDecorridoMinutos"`
	TravelToArrival    *float64 `json:"tempoAteChegadaMinutos,omitempty"`
	RemainingToArrival *float64 `json:"tempoRestanteAteChegadaMinutos,omitempty"`
	SLAMinutes         float64  `json:"slaMinutos"`
	Remaining          float64  `json:"tempoRestanteMinutos"`
	SLAAtRisk          bool     `json:"slaEmRisco"`
	SLAExceeded        bool     `json:"slaExcedido"`
	ElapsedSLA         float64  `json:"tempoSlaDecorridoMinutos"`
	WasDispatched      bool     `json:"foiDespachada"`
	ArrivedOnScene     bool     `json:"chegouLocal"`
	WasConcluded       bool     `json:"foiConcluida"`
	ReturnedToBase     bool     `json:"retornouBase"`
	VehiclePlate       string   `json:"placaAmbulancia,omitempty"`
	DistanceKm         float64  `json:"distanciaKm"`
	TotalFormatted     string   `json:"tempoTotalFormatado"`
	RemainingFormatted string   `json:"tempoRestanteFormatado"`
}

type historyEntry struct {
	ID             int    `json:"id"`
	OccurrenceID   string `json:"ocorrenciaId"`
	Action         string `json:"acao"`
	PreviousStatus string `json:"statusAnterior,omitempty"`
	NewStatus      string `json:"statusNovo"`
	Description    string `json:"descricaoAcao"`
	Timestamp      string `json:"dataHora"`
	OccurrenceType string `json:"tipoOcorrencia"`
	ActorName      string `json:"usuarioNome"`
	ActorRole      string `json:"usuarioPerfil"`
	VehiclePlate   string `json:"placaAmbulancia,omitempty"`
}

type occurrenceResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Type     string `json:"tipoOcorrencia"`
	Severity string `json:"gravidade"`
}

// clock tracks when each occurrence was first seen. Ids prefixed with
// "cancel" are cancelled before an ambulance arrives.
type clock struct {
	mu      sync.Mutex
	opened  map[string]time.Time
	speedup float64
}

func (c *clock) minutes(id string) (time.Time, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opened, ok := c.opened[id]
	if !ok {
		opened = time.Now()
		c.opened[id] = opened
	}
	return opened, time.Since(opened).Minutes() * c.speedup
}

func (c *clock) at(opened time.Time, minute float64) string {
	return opened.Add(time.Duration(minute / c.speedup * float64(time.Minute))).Format(timestampLayout)
}

func cancelled(id string) bool {
	return strings.HasPrefix(id, "cancel")
}

func status(id string, elapsed float64) string {
	switch {
	case cancelled(id) && elapsed >= cancelAt:
		return "CANCELADA"
	case elapsed >= concludeAt:
		return "CONCLUIDA"
	case elapsed >= arriveAt:
		return "EM_ATENDIMENTO"
	case elapsed >= dispatchAt:
		return "DESPACHADA"
	default:
		return "ABERTA"
	}
}

func (c *clock) timer(id string) timerResponse {
	opened, elapsed := c.minutes(id)
	st := status(id, elapsed)
	res := timerResponse{
		OccurrenceID: id,
		Status:       st,
		OpenedAt:     opened.Format(timestampLayout),
		TotalElapsed: elapsed,
		SLAMinutes:   slaMinutes,
		DistanceKm:   4.2,
	}

	slaClock := elapsed
	if st != "ABERTA" && st != "CANCELADA" {
		res.WasDispatched = true
		res.DispatchedAt = c.at(opened, dispatchAt)
		res.VehiclePlate = plate
	}
	if elapsed >= arriveAt && !cancelled(id) {
		res.ArrivedOnScene = true
		res.ArrivedAt = c.at(opened, arriveAt)
		travel := arriveAt - dispatchAt
		res.TravelToArrival = &travel
		slaClock = arriveAt
	} else if res.WasDispatched {
		remaining := arriveAt - elapsed
		res.RemainingToArrival = &remaining
	}
	if st == "CANCELADA" {
		slaClock = cancelAt
	}
	if st == "CONCLUIDA" {
		res.WasConcluded = true
		res.ConcludedAt = c.at(opened, concludeAt)
		if elapsed >= returnAt {
			res.ReturnedToBase = true
			res.ReturnedAt = c.at(opened, returnAt)
		}
	}

	res.ElapsedSLA = slaClock
	res.Remaining = slaMinutes - slaClock
	res.SLAExceeded = slaClock > slaMinutes
	res.SLAAtRisk = !res.SLAExceeded && slaClock >= slaMinutes*0.8
	res.TotalFormatted = formatMinutes(elapsed)
	res.RemainingFormatted = formatMinutes(res.Remaining)
	return res
}

func (c *clock) history(id string) []historyEntry {
	opened, elapsed := c.minutes(id)
	entry := func(n int, minute float64, action, from, to, desc string) historyEntry {
		return historyEntry{
			ID:             n,
			OccurrenceID:   id,
			Action:         action,
			PreviousStatus: from,
			NewStatus:      to,
			Description:    desc,
			Timestamp:      c.at(opened, minute),
			OccurrenceType: "EMERGENCIA",
			ActorName:      "Central de Regulação",
			ActorRole:      "REGULADOR",
		}
	}

	events := []historyEntry{entry(1, 0, "ABERTURA", "", "ABERTA", "Ocorrência aberta")}
	if cancelled(id) {
		if elapsed >= cancelAt {
			events = append(events, entry(2, cancelAt, "CANCELAMENTO", "ABERTA", "CANCELADA", "Ocorrência cancelada pelo solicitante"))
		}
		return reverse(events)
	}
	if elapsed >= dispatchAt {
		e := entry(2, dispatchAt, "DESPACHO", "ABERTA", "DESPACHADA", "Ambulância despachada")
		e.VehiclePlate = plate
		events = append(events, e)
	}
	if elapsed >= arriveAt {
		e := entry(3, arriveAt, "CHEGADA", "DESPACHADA", "EM_ATENDIMENTO", "Equipe no local")
		e.VehiclePlate = plate
		events = append(events, e)
	}
	if elapsed >= concludeAt {
		events = append(events, entry(4, concludeAt, "CONCLUSAO", "EM_ATENDIMENTO", "CONCLUIDA", "Atendimento concluído"))
	}
	if elapsed >= returnAt {
		e := entry(5, returnAt, "RETORNO_BASE", "CONCLUIDA", "CONCLUIDA", "Ambulância retornou à base")
		e.VehiclePlate = plate
		events = append(events, e)
	}
	return reverse(events)
}

func reverse(events []historyEntry) []historyEntry {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events
}

func formatMinutes(m float64) string {
	sign := ""
	if m < 0 {
		sign, m = "-", -m
	}
	total := int(m * 60)
	return fmt.Sprintf("%s%02d:%02d", sign, total/60, total%60)
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	speedup := flag.Float64("speedup", 30, "simulated minutes per real minute")
	flag.Parse()

	c := &clock{opened: make(map[string]time.Time), speedup: *speedup}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/ocorrencias/{id}/timer", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.timer(r.PathValue("id")))
	})
	mux.HandleFunc("GET /api/historico-ocorrencias/ocorrencia/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.history(r.PathValue("id")))
	})
	mux.HandleFunc("GET /api/ocorrencias/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		_, elapsed := c.minutes(id)
		writeJSON(w, occurrenceResponse{ID: id, Status: status(id, elapsed), Type: "EMERGENCIA", Severity: "ALTA"})
	})

	logger := log.New(log.Writer(), "dispatch-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s (x%.0f)", *addr, *speedup)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s user=%s", r.Method, r.URL.Path, rw.status, time.Since(start), r.Header.Get("X-User-Id"))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
