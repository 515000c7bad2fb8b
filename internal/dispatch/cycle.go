package dispatch

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/config"
	"battery-dispatch/internal/history"
	"battery-dispatch/internal/model"
	"battery-dispatch/internal/planner"
	"battery-dispatch/internal/realtime"
	"battery-dispatch/internal/strategy"
)

// ErrCycleInFlight is returned when a cycle is requested while another one
// is still running. Cycles are never run concurrently.
var ErrCycleInFlight = errors.New("dispatch cycle already in flight")

// PriceSource fetches the hourly spot records for a calendar day.
type PriceSource interface {
	FetchDay(ctx context.Context, day time.Time) ([]model.HourlyPrice, error)
}

// ResultSink accepts named scalar values and forecast documents. Writes are
// best effort; a failed write never fails the cycle.
type ResultSink interface {
	WriteValue(name string, value any) error
	WriteForecast(name string, plan model.Plan) error
}

// Recorder persists completed cycles.
type Recorder interface {
	RecordCycle(ctx context.Context, rec history.CycleRecord) error
}

// CycleResult is everything one completed cycle produced.
type CycleResult struct {
	At                time.Time                  `json:"at"`
	Flows             model.Flows                `json:"-"`
	Decision          model.Decision             `json:"decision"`
	Price             float64                    `json:"price"`
	HavePrice         bool                       `json:"have_price"`
	TargetSoC         *float64                   `json:"target_soc,omitempty"`
	Diagnostic        *strategy.TargetDiagnostic `json:"diagnostic,omitempty"`
	CapSoC            float64                    `json:"cap_soc"`
	ReservationActive bool                       `json:"reservation_active"`
	PlanToday         model.Plan                 `json:"plan_today"`
	PlanTomorrow      *model.Plan                `json:"plan_tomorrow,omitempty"`
}

// Runner executes dispatch cycles. Everything mutable is local to one
// RunCycle call; the only shared state is the last-cycle snapshot.
type Runner struct {
	batt      model.BatteryParams
	clsCfg    strategy.ClassifierConfig
	policy    strategy.ReservationPolicy
	planner   *planner.Planner
	engine    *realtime.Engine
	markupIn  float64
	markupOut float64

	feed     PriceSource
	sink     ResultSink
	recorder Recorder
	log      *logrus.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	runMu  sync.Mutex
	snapMu sync.RWMutex
	last   *CycleResult
}

func NewRunner(cfg *config.Config, feed PriceSource, sink ResultSink, recorder Recorder, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	batt := cfg.Battery.ToModelParams()
	plannerCfg := planner.Config{
		MinMargin:     cfg.Prices.MinMargin,
		MidShaveBias:  cfg.Prices.MidShaveBias,
		FloorSoC:      cfg.Dispatch.FloorSoC,
		HysteresisSoC: cfg.Dispatch.HysteresisSoC,
	}
	return &Runner{
		batt:   batt,
		clsCfg: strategy.ClassifierConfig{
			CheapFraction: cfg.Prices.CheapFraction,
			TopFraction:   cfg.Prices.TopFraction,
			NextFraction:  cfg.Prices.NextFraction,
		},
		policy:  cfg.Reservation.ToPolicy(),
		planner: planner.New(batt, plannerCfg),
		engine: realtime.New(batt, realtime.Config{
			Config:            plannerCfg,
			NoiseFloorKW:      cfg.Dispatch.NoiseFloorKW,
			CapHysteresisSoC:  cfg.Dispatch.CapHysteresisSoC,
			GridChargeAllowed: cfg.Dispatch.GridChargeAllowed,
			GoalChargeAllowed: cfg.Dispatch.GoalChargeAllowed,
		}, log),
		markupIn:  cfg.Prices.ImportMarkup,
		markupOut: cfg.Prices.ExportMarkup,
		feed:      feed,
		sink:      sink,
		recorder:  recorder,
		log:       log,
		Now:       time.Now,
	}
}

// Snapshot returns the last completed cycle, if any.
func (r *Runner) Snapshot() (*CycleResult, bool) {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	if r.last == nil {
		return nil, false
	}
	cp := *r.last
	return &cp, true
}

// RunCycle executes one full dispatch cycle from a telemetry sample. It
// never fails on feed or sink trouble: a missing horizon degrades the plan
// and a rejected write is logged, but the cycle always yields a decision.
func (r *Runner) RunCycle(ctx context.Context, sample model.TelemetrySample) (*CycleResult, error) {
	if !r.runMu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer r.runMu.Unlock()

	now := r.Now()
	flows := sample.Normalize()

	today := r.fetchDay(ctx, now, "today")
	tomorrow := r.fetchDay(ctx, now.AddDate(0, 0, 1), "tomorrow")

	clsToday := strategy.Classify(today, r.clsCfg)
	clsTomorrow := strategy.Classify(tomorrow, r.clsCfg)

	// The cap table is rebuilt from nothing every cycle.
	caps := strategy.NewCapTable(r.batt)
	caps.Apply(today, r.policy, clsToday)
	caps.Apply(tomorrow, r.policy, clsTomorrow)

	remainingCheap := make([]model.HourlyPrice, 0, len(today))
	for _, rec := range today {
		if rec.Start.After(now) && clsToday.TierOf(rec.HourKey()) == strategy.TierCheap {
			remainingCheap = append(remainingCheap, rec)
		}
	}
	target, diag := strategy.MidnightTarget(remainingCheap, tomorrow, clsTomorrow, r.planner.Cfg.MinMargin, r.batt)

	planToday := r.planner.Build(now, model.FromHour(today, now), clsToday, caps, flows.SoC)
	var planTomorrow *model.Plan
	if len(tomorrow) > 0 {
		start := planToday.EndSoC
		if target != nil {
			start = *target
		}
		p := r.planner.Build(now, tomorrow, clsTomorrow, caps, start)
		planTomorrow = &p
	}

	hour, haveHour := model.RecordForHour(today, now)
	decision := r.engine.Decide(realtime.Inputs{
		Now:      now,
		Flows:    flows,
		Tier:     clsToday.TierOf(now),
		Hour:     hour,
		HaveHour: haveHour,
		Baselines: realtime.Baselines{
			CheapToday:    cheapAverage(today, clsToday),
			CheapTomorrow: cheapAverage(tomorrow, clsTomorrow),
			Overall:       model.AverageBuy(append(append([]model.HourlyPrice{}, today...), tomorrow...)),
			BuyToday:      model.AverageBuy(today),
		},
		Target: target,
		Caps:   caps,
	})

	cap, reserved := caps.Override(now)
	result := &CycleResult{
		At:                now,
		Flows:             flows,
		Decision:          decision,
		Price:             hour.Buy,
		HavePrice:         haveHour,
		TargetSoC:         target,
		Diagnostic:        diag,
		CapSoC:            cap,
		ReservationActive: reserved,
		PlanToday:         planToday,
		PlanTomorrow:      planTomorrow,
	}

	r.publish(result)
	r.record(ctx, result)

	r.snapMu.Lock()
	r.last = result
	r.snapMu.Unlock()

	r.log.WithFields(logrus.Fields{
		"mode":   decision.Mode,
		"power":  decision.PowerKW,
		"soc":    flows.SoC,
		"target": formatTarget(target),
	}).Info(decision.Reason)
	return result, nil
}

func (r *Runner) fetchDay(ctx context.Context, day time.Time, label string) []model.HourlyPrice {
	records, err := r.feed.FetchDay(ctx, day)
	if err != nil {
		// Degrade: the missing horizon is treated as absent and the cycle
		// completes on what remains.
		r.log.WithError(err).WithField("horizon", label).Warn("price feed unavailable")
		return nil
	}
	return model.WithMarkups(records, r.markupIn, r.markupOut)
}

func (r *Runner) publish(res *CycleResult) {
	if r.sink == nil {
		return
	}
	r.sink.WriteValue("action", string(res.Decision.Mode))
	r.sink.WriteValue("power_kw", res.Decision.PowerKW)
	r.sink.WriteValue("reason", res.Decision.Reason)
	r.sink.WriteValue("soc_percent", model.RoundKW(res.Flows.SoC*100))
	r.sink.WriteValue("cap_percent", model.RoundKW(res.CapSoC*100))
	r.sink.WriteValue("reservation_active", res.ReservationActive)
	if res.HavePrice {
		r.sink.WriteValue("price", res.Price)
	}
	if res.TargetSoC != nil {
		r.sink.WriteValue("target_soc_percent", model.RoundKW(*res.TargetSoC*100))
	}
	r.sink.WriteForecast("forecast/today", res.PlanToday)
	if res.PlanTomorrow != nil {
		r.sink.WriteForecast("forecast/tomorrow", *res.PlanTomorrow)
	}
}

func (r *Runner) record(ctx context.Context, res *CycleResult) {
	if r.recorder == nil {
		return
	}
	rec := history.CycleRecord{
		At:           res.At,
		Decision:     res.Decision,
		SoC:          res.Flows.SoC,
		Price:        res.Price,
		TargetSoC:    res.TargetSoC,
		CapSoC:       res.CapSoC,
		Reservation:  res.ReservationActive,
		PlanToday:    res.PlanToday,
		PlanTomorrow: res.PlanTomorrow,
	}
	if err := r.recorder.RecordCycle(ctx, rec); err != nil {
		r.log.WithError(err).Warn("history write failed")
	}
}

func cheapAverage(records []model.HourlyPrice, cls strategy.Classification) float64 {
	cheap := make([]model.HourlyPrice, 0, len(records))
	for _, r := range records {
		if cls.TierOf(r.HourKey()) == strategy.TierCheap {
			cheap = append(cheap, r)
		}
	}
	return model.AverageBuy(cheap)
}

func formatTarget(target *float64) float64 {
	if target == nil {
		return math.NaN()
	}
	return *target
}
