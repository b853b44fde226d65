package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"bookbot-go/internal/config"
	"bookbot-go/internal/risk"
	"bookbot-go/internal/strategy"
)

const defaultConfigPath = "internal/config/config.yaml"

type console struct {
	in   *bufio.Reader
	path string
	cfg  *config.Config
}

type menuItem struct {
	key    string
	label  string
	action func(*console)
}

var menu = []menuItem{
	{"1", "Show configuration summary", (*console).summary},
	{"2", "Edit strategy", (*console).editStrategy},
	{"3", "Edit risk knobs", (*console).editRisk},
	{"4", "Save config", (*console).save},
	{"5", "Reload config from disk", (*console).reload},
	{"6", "Launch paper gateway", func(c *console) { c.launch("./cmd/paper") }},
	{"7", "Launch book feed", func(c *console) { c.launch("./cmd/bookfeed") }},
	{"8", "Launch engine", func(c *console) { c.launch("./cmd/engine") }},
	{"9", "Show paper account", (*console).account},
}

func main() {
	path := defaultConfigPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	c := &console{in: bufio.NewReader(os.Stdin), path: path, cfg: cfg}

	for {
		fmt.Println("\n=== BookBot Control ===")
		for _, item := range menu {
			fmt.Printf("%s) %s\n", item.key, item.label)
		}
		fmt.Println("0) Exit")
		choice := c.line("Select option: ")
		if choice == "0" {
			return
		}
		found := false
		for _, item := range menu {
			if item.key == choice {
				item.action(c)
				found = true
				break
			}
		}
		if !found {
			fmt.Println("unknown option")
		}
	}
}

func (c *console) line(prompt string) string {
	fmt.Print(prompt)
	s, _ := c.in.ReadString('\n')
	return strings.TrimSpace(s)
}

func (c *console) summary() {
	cfg := c.cfg
	p := cfg.Strategy.Params
	fmt.Println("\n--- Configuration Summary (file values, BOOKBOT_* overrides apply at launch) ---")
	fmt.Printf("Environment: %s | symbol: %s | dry run: %t\n", cfg.App.Env, cfg.Feed.Symbol, cfg.Gateway.DryRun)
	fmt.Printf("Strategy: %s | gate: %s\n", cfg.Strategy.Mode, p.GatePolicy)
	fmt.Printf("Quantity: %g | aggressiveness: %g\n", p.Quantity, aggressiveness(p))
	fmt.Printf("Stop loss: %.2f%% | take profit: %.2f%%\n", cfg.Risk.StopLoss*100, cfg.Risk.TakeProfit*100)
	fmt.Printf("Risk cooldown: %ds | max notional per order: %g\n", cfg.Risk.CooldownSecs, cfg.Risk.MaxNotionalPerOrder)
	fmt.Printf("OBI threshold: %g | spread threshold: %g | max position: %g\n", p.OBIThreshold, p.SpreadThreshold, p.MaxPosition)
	fmt.Printf("Redis: %s | gateway socket: %s | book provider: %s\n", cfg.Feed.RedisAddr, cfg.Gateway.Socket, cfg.BookFeed.Provider)
}

func (c *console) editStrategy() {
	fmt.Println("\n--- Edit Strategy ---")
	p := &c.cfg.Strategy.Params
	c.cfg.Strategy.Mode = c.choice("Mode (trend, obi, spread)", c.cfg.Strategy.Mode, func(s string) error {
		_, err := strategy.ParseMode(s)
		return err
	})
	p.GatePolicy = c.choice("Gate policy (full, breach_only)", p.GatePolicy, func(s string) error {
		_, err := risk.ParseGatePolicy(s)
		return err
	})
	p.Quantity = c.number("Order quantity", p.Quantity)
	agg := c.number("Aggressiveness (price offset)", aggressiveness(*p))
	p.Aggressiveness = &agg
	p.CooldownSecs = int(c.number("Signal cooldown secs (0 = mode default)", float64(p.CooldownSecs)))
	p.OBIThreshold = c.number("OBI threshold", p.OBIThreshold)
	p.SpreadThreshold = c.number("Spread threshold", p.SpreadThreshold)
	p.MaxPosition = c.number("Max position", p.MaxPosition)
}

func (c *console) editRisk() {
	fmt.Println("\n--- Edit Risk ---")
	r := &c.cfg.Risk
	r.StopLoss = c.number("Stop loss (%)", r.StopLoss*100) / 100
	r.TakeProfit = c.number("Take profit (%)", r.TakeProfit*100) / 100
	r.CooldownSecs = int(c.number("Cooldown after forced exit (s)", float64(r.CooldownSecs)))
	r.MaxNotionalPerOrder = c.number("Max notional per order (0 = off)", r.MaxNotionalPerOrder)
	c.cfg.Paper.StartingCash = c.number("Paper starting cash", c.cfg.Paper.StartingCash)
}

// save writes the file values being edited. Environment overrides are never
// loaded here, so they stay out of the file; launched processes apply them.
func (c *console) save() {
	if err := c.cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "not saved: %v\n", err)
		return
	}
	if err := config.Save(c.path, c.cfg); err != nil {
		fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
		return
	}
	fmt.Println("config saved")
}

func (c *console) reload() {
	cfg, err := config.LoadFile(c.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
		return
	}
	c.cfg = cfg
	fmt.Println("config reloaded")
}

func (c *console) launch(pkg string) {
	fmt.Printf("Launching %s (Ctrl+C to stop)...\n", pkg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", pkg, "-config", c.path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start %s: %v\n", pkg, err)
		return
	}
	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	c.line("\nPress ENTER to stop and return to menu...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

// account asks a running paper gateway for its balances over the unix socket.
func (c *console) account() {
	sock := c.cfg.Paper.Socket
	client := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		},
	}
	resp, err := client.Get("http://unix/api/account")
	if err != nil {
		fmt.Fprintf(os.Stderr, "paper gateway unreachable on %s: %v\n", sock, err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	doc := gjson.ParseBytes(body)
	fmt.Println("\n--- Paper Account ---")
	fmt.Printf("Cash: %.2f | equity: %.2f | realized: %.2f\n",
		doc.Get("cash").Float(), doc.Get("equity").Float(), doc.Get("realizedPnl").Float())
	doc.Get("positions").ForEach(func(sym, pos gjson.Result) bool {
		fmt.Printf("  %s qty=%g avg=%.2f\n", sym.String(), pos.Get("qty").Float(), pos.Get("avgCost").Float())
		return true
	})
}

func (c *console) choice(label, current string, check func(string) error) string {
	s := strings.ToLower(c.line(fmt.Sprintf("%s [%s]: ", label, current)))
	if s == "" {
		return current
	}
	if err := check(s); err != nil {
		fmt.Printf("%v, keeping %s\n", err, current)
		return current
	}
	return s
}

func (c *console) number(label string, current float64) float64 {
	s := c.line(fmt.Sprintf("%s [%g]: ", label, current))
	if s == "" {
		return current
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %g\n", current)
		return current
	}
	return val
}

func aggressiveness(p config.StrategyParams) float64 {
	if p.Aggressiveness == nil {
		return strategy.DefaultAggressiveness
	}
	return *p.Aggressiveness
}
