package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/config"
	"battery-dispatch/internal/data"
	"battery-dispatch/internal/dispatch"
	"battery-dispatch/internal/model"
	"battery-dispatch/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "classify":
		cmdClassify(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli run --config config.yaml --prices fixtures/prices.json --soc 55")
	fmt.Println("  cli classify --config config.yaml --prices fixtures/prices.json")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - run executes one dispatch cycle against a price fixture and prints the plan")
	fmt.Println("  - a fixture may span two days; the second day becomes 'tomorrow'")
	fmt.Println("  - classify prints the cheap/top/next/mid tier of every fixture hour")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	pricesPath := fs.String("prices", "", "Path to hourly price fixture JSON")
	nowStr := fs.String("now", "", "Decision instant (RFC3339; default: first fixture hour)")
	soc := fs.Float64("soc", 50, "Current SoC (percent or fraction)")
	productionW := fs.Float64("production", 0, "Solar production (W)")
	loadW := fs.Float64("load", 0, "Local load (W)")
	_ = fs.Parse(args)

	if *cfgPath == "" || *pricesPath == "" {
		fmt.Println("--config and --prices are required")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	records, err := data.LoadPricesJSON(*pricesPath)
	if err != nil {
		fatal("load prices: %v", err)
	}
	if len(records) == 0 {
		fatal("fixture %s holds no hours", *pricesPath)
	}

	now := records[0].Start
	if *nowStr != "" {
		now, err = time.Parse(time.RFC3339, *nowStr)
		if err != nil {
			fatal("invalid --now: %v", err)
		}
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	runner := dispatch.NewRunner(cfg, fixtureSource{records: records}, nil, nil, log)
	runner.Now = func() time.Time { return now }

	res, err := runner.RunCycle(context.Background(), model.TelemetrySample{
		ProductionW: *productionW,
		LoadW:       *loadW,
		SoC:         *soc,
	})
	if err != nil {
		fatal("run cycle: %v", err)
	}

	fmt.Printf("decision: %s %.2f kW (export=%v)\n", res.Decision.Mode, res.Decision.PowerKW, res.Decision.Export)
	fmt.Printf("reason:   %s\n", res.Decision.Reason)
	if res.TargetSoC != nil {
		fmt.Printf("midnight target: %.0f%%\n", *res.TargetSoC*100)
	}
	if res.Diagnostic != nil {
		fmt.Printf("profitability: buy %.3f vs max %.3f (profitable=%v)\n",
			res.Diagnostic.AvgCheapBuyToday, res.Diagnostic.MaxProfitableBuy, res.Diagnostic.Profitable)
	}

	fmt.Println("\ntoday:")
	printPlan(res.PlanToday)
	if res.PlanTomorrow != nil {
		fmt.Println("\ntomorrow:")
		printPlan(*res.PlanTomorrow)
	}
}

func cmdClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	pricesPath := fs.String("prices", "", "Path to hourly price fixture JSON")
	_ = fs.Parse(args)

	if *cfgPath == "" || *pricesPath == "" {
		fmt.Println("--config and --prices are required")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	records, err := data.LoadPricesJSON(*pricesPath)
	if err != nil {
		fatal("load prices: %v", err)
	}
	records = model.WithMarkups(records, cfg.Prices.ImportMarkup, cfg.Prices.ExportMarkup)

	cls := strategy.Classify(records, strategy.ClassifierConfig{
		CheapFraction: cfg.Prices.CheapFraction,
		TopFraction:   cfg.Prices.TopFraction,
		NextFraction:  cfg.Prices.NextFraction,
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Hour", "Spot", "Buy", "Sell", "Tier")
	for _, r := range records {
		table.Append(
			r.Start.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.3f", r.Spot),
			fmt.Sprintf("%.3f", r.Buy),
			fmt.Sprintf("%.3f", r.Sell),
			string(cls.TierOf(r.HourKey())),
		)
	}
	table.Render()
}

func printPlan(plan model.Plan) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Hour", "Decision", "kW", "SoC", "Buy")
	for _, e := range plan.Entries {
		table.Append(
			e.HourStart.Format("15:04"),
			string(e.Mode),
			fmt.Sprintf("%.2f", e.PowerKW),
			fmt.Sprintf("%.0f%%", e.SoC*100),
			fmt.Sprintf("%.3f", e.BuyPrice),
		)
	}
	table.Render()
	fmt.Printf("end SoC: %.0f%%\n", plan.EndSoC*100)
}

// fixtureSource serves a fixture file as the price feed; the fixture may
// span several days and each FetchDay returns the matching slice.
type fixtureSource struct {
	records []model.HourlyPrice
}

func (f fixtureSource) FetchDay(_ context.Context, day time.Time) ([]model.HourlyPrice, error) {
	key := day.Format("2006-01-02")
	var out []model.HourlyPrice
	for _, r := range f.records {
		if r.Start.Format("2006-01-02") == key {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no fixture hours for %s", key)
	}
	return out, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
