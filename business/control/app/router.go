package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	booksapp "github.com/dpfaria/triarb/business/books/app"
	marketapp "github.com/dpfaria/triarb/business/market/app"
	"github.com/dpfaria/triarb/internal/logger"
)

// Sender delivers a message to the operator channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Blacklist is the control plane's read-only view of the persistent
// blacklist.
type Blacklist interface {
	Len() int
	Symbols() []string
}

// Router parses operator commands and applies them to the engine state.
type Router struct {
	state      *State
	gateway    marketapp.ExchangeGateway
	cache      *booksapp.Cache
	blacklist  Blacklist
	sender     Sender
	logger     logger.LoggerInterface
	healthyAge time.Duration
}

// NewRouter wires the command router. healthyAge is the snapshot age
// below which a stream is reported healthy.
func NewRouter(
	state *State,
	gw marketapp.ExchangeGateway,
	cache *booksapp.Cache,
	bl Blacklist,
	sender Sender,
	healthyAge time.Duration,
	log logger.LoggerInterface,
) *Router {
	return &Router{
		state:      state,
		gateway:    gw,
		cache:      cache,
		blacklist:  bl,
		sender:     sender,
		logger:     log,
		healthyAge: healthyAge,
	}
}

// Handle executes one operator command. Unknown commands and invalid
// arguments are answered on the channel, never returned as errors; the
// intake loop must keep running regardless of what the operator types.
func (r *Router) Handle(ctx context.Context, text string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	r.logger.Info(ctx, "operator command", "command", cmd, "args", strings.Join(args, " "))

	var reply string
	switch cmd {
	case "/start", "/ajuda":
		reply = helpText
	case "/status":
		reply = r.status()
	case "/saldo":
		reply = r.balances(ctx)
	case "/pausar":
		r.state.SetRunning(false)
		reply = "Motor pausado. Use /retomar para continuar."
	case "/retomar":
		r.state.SetRunning(true)
		reply = "Motor retomado."
	case "/modo_real":
		r.state.SetDryRun(false)
		reply = "Modo REAL ativado. Ordens serão enviadas à exchange."
	case "/modo_simulacao":
		r.state.SetDryRun(true)
		reply = "Modo SIMULAÇÃO ativado. Nenhuma ordem será enviada."
	case "/setlucro":
		reply = r.setDecimal(args, "lucro mínimo", "%", r.state.SetMinProfitPct)
	case "/setvolume":
		reply = r.setDecimal(args, "volume", "%", r.state.SetVolumePercent)
	case "/setdepth":
		reply = r.setDepth(args)
	case "/verificar_ws":
		reply = r.streamReport()
	default:
		reply = fmt.Sprintf("Comando desconhecido: %s\nUse /ajuda para a lista de comandos.", cmd)
	}

	if err := r.sender.Send(ctx, reply); err != nil {
		r.logger.Warn(ctx, "command reply failed", "command", cmd, "error", err)
	}
}

const helpText = `Comandos disponíveis:
/status - estado atual do motor
/saldo - saldos livres na exchange
/pausar - pausa a análise
/retomar - retoma a análise
/modo_real - executa ordens reais
/modo_simulacao - apenas simula
/setlucro N - lucro mínimo em %
/setvolume N - volume por ciclo em % do saldo
/setdepth N - comprimento máximo do ciclo
/verificar_ws - saúde dos streams de book
/ajuda - esta mensagem`

func (r *Router) status() string {
	st := r.state.Snapshot()

	running := "PAUSADO"
	if st.Running {
		running = "ATIVO"
	}
	mode := "SIMULAÇÃO"
	if !st.DryRun {
		mode = "REAL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Motor: %s\n", running)
	fmt.Fprintf(&b, "Modo: %s\n", mode)
	fmt.Fprintf(&b, "Lucro mínimo: %s%%\n", st.MinProfitPct.String())
	fmt.Fprintf(&b, "Volume: %s%%\n", st.VolumePercent.String())
	fmt.Fprintf(&b, "Profundidade máxima: %d\n", st.MaxDepth)
	fmt.Fprintf(&b, "Books em cache: %d\n", r.cache.Len())
	fmt.Fprintf(&b, "Pares na blacklist: %d", r.blacklist.Len())
	if n := r.blacklist.Len(); n > 0 && n <= 20 {
		fmt.Fprintf(&b, "\nBlacklist: %s", strings.Join(r.blacklist.Symbols(), ", "))
	}
	return b.String()
}

func (r *Router) balances(ctx context.Context) string {
	balances, err := r.gateway.FetchBalance(ctx)
	if err != nil {
		return fmt.Sprintf("Falha ao consultar saldos: %v", err)
	}

	type entry struct {
		currency string
		free     decimal.Decimal
	}
	entries := make([]entry, 0, len(balances))
	for cur, bal := range balances {
		if bal.Free.Sign() <= 0 {
			continue
		}
		entries = append(entries, entry{currency: string(cur), free: bal.Free})
	}
	if len(entries) == 0 {
		return "Nenhum saldo livre."
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].currency < entries[j].currency })

	var b strings.Builder
	b.WriteString("Saldos livres:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s: %s", e.currency, e.free.String())
	}
	return b.String()
}

func (r *Router) setDecimal(args []string, name, unit string, apply func(decimal.Decimal) error) string {
	if len(args) != 1 {
		return fmt.Sprintf("Uso: informe um único valor numérico para %s.", name)
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(args[0], ",", "."))
	if err != nil {
		return fmt.Sprintf("Valor inválido: %q", args[0])
	}
	if err := apply(value); err != nil {
		return fmt.Sprintf("Valor rejeitado: %v", err)
	}
	return fmt.Sprintf("Novo %s: %s%s", name, value.String(), unit)
}

func (r *Router) setDepth(args []string) string {
	if len(args) != 1 {
		return "Uso: /setdepth N"
	}
	depth, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Sprintf("Valor inválido: %q", args[0])
	}
	if err := r.state.SetMaxDepth(depth); err != nil {
		return fmt.Sprintf("Valor rejeitado: %v", err)
	}
	return fmt.Sprintf("Nova profundidade máxima: %d", depth)
}

// streamReport lists every cached book with its snapshot age and flags
// the stale ones.
func (r *Router) streamReport() string {
	ages := r.cache.Ages()
	if len(ages) == 0 {
		return "Nenhum stream ativo."
	}
	sort.Slice(ages, func(i, j int) bool {
		return ages[i].Symbol.String() < ages[j].Symbol.String()
	})

	healthy := 0
	var stale []string
	for _, a := range ages {
		if a.Elapsed <= r.healthyAge {
			healthy++
			continue
		}
		stale = append(stale, fmt.Sprintf("%s (%s)", a.Symbol, a.Elapsed.Truncate(time.Second)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Streams: %d saudáveis de %d", healthy, len(ages))
	if len(stale) > 0 {
		fmt.Fprintf(&b, "\nDesatualizados:\n%s", strings.Join(stale, "\n"))
	}
	return b.String()
}
