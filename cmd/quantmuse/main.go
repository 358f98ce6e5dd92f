package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantmuse/adapter"
	"quantmuse/config"
	"quantmuse/logger"
	"quantmuse/models"
	"quantmuse/sink"
	"quantmuse/terminal"
)

// Default indicator sets for one sync run. Callers with other needs go
// through the adapter API directly.
var (
	tradeFlowIndicators = []string{
		"ths_lhb_buy_amount_stock",
		"ths_lhb_sell_amount_stock",
		"ths_lhb_net_buy_amount_stock",
		"ths_lhb_turnover_ratio_stock",
		"ths_lhb_reason_stock",
	}
	seatIndicators = []string{
		"ths_lhb_seat_name_stock",
		"ths_lhb_seat_type_stock",
		"ths_lhb_buy_amount_seat_stock",
		"ths_lhb_sell_amount_seat_stock",
	}
	quoteIndicators = []string{
		"open", "high", "low", "close", "volume", "amount", "turn", "pctChg",
	}
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to configuration file")
	startDate := flag.String("start", time.Now().AddDate(0, 0, -1).Format(models.DateLayout), "start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date (YYYY-MM-DD), defaults to start")
	codesArg := flag.String("codes", "", "comma-separated instrument codes; empty fetches the full universe")
	flag.Parse()

	if *endDate == "" {
		*endDate = *startDate
	}

	log := logger.GetLogger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logging")
		os.Exit(1)
	}
	if cfg.Logging.DashboardName != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Logging.DashboardName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	logger.StartReport(ctx, log, time.Minute)

	term := terminal.NewHTTPTerminal(cfg)
	adp := adapter.New(cfg, term)
	defer adp.Close(context.Background())

	store, err := sink.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to initialize sink")
		os.Exit(1)
	}

	if err := runSync(ctx, adp, store, *codesArg, *startDate, *endDate); err != nil {
		log.WithComponent("main").WithError(err).Error("sync aborted")
		os.Exit(1)
	}
	log.WithComponent("main").Info("sync complete")
}

func runSync(ctx context.Context, adp *adapter.Adapter, store *sink.Sink, codesArg, startDate, endDate string) error {
	log := logger.GetLogger().WithComponent("main")

	codes := splitCodes(codesArg)
	if len(codes) == 0 {
		res, err := adp.FetchInstrumentList(ctx, models.Query{
			Kind:      models.KindInstrumentList,
			StartDate: startDate,
			EndDate:   startDate,
		})
		if err != nil {
			return err
		}
		for _, rec := range res.Records {
			if code, ok := rec["code"].(string); ok && code != "" {
				codes = append(codes, code)
			}
		}
		log.WithFields(logger.Fields{"instruments": len(codes)}).Info("fetched instrument universe")
	}

	flow, err := adp.FetchTradeFlow(ctx, models.Query{
		Kind:       models.KindTradeFlow,
		StartDate:  startDate,
		EndDate:    endDate,
		Indicators: tradeFlowIndicators,
	})
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"records":  len(flow.Records),
		"attempts": len(flow.Trace),
		"no_data":  flow.NoData,
	}).Info("trade flow sync finished")

	seats, err := adp.FetchSeatDetail(ctx, models.Query{
		Kind:       models.KindSeatDetail,
		StartDate:  startDate,
		EndDate:    endDate,
		Indicators: seatIndicators,
	})
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"records":  len(seats.Records),
		"attempts": len(seats.Trace),
		"no_data":  seats.NoData,
	}).Info("seat detail sync finished")

	if len(codes) == 0 {
		log.Warn("no instrument codes available, skipping history quotes")
		return nil
	}

	quotes, err := adp.FetchHistoryQuotes(ctx, models.Query{
		Kind:       models.KindHistoryQuotes,
		Codes:      codes,
		StartDate:  startDate,
		EndDate:    endDate,
		Indicators: quoteIndicators,
	})
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"records":  len(quotes.Records),
		"attempts": len(quotes.Trace),
		"no_data":  quotes.NoData,
	}).Info("history quotes sync finished")

	if !quotes.NoData {
		if _, err := store.WriteQuotes(ctx, quotes.Records); err != nil {
			return err
		}
	}
	return nil
}

func splitCodes(arg string) []string {
	var codes []string
	for _, c := range strings.Split(arg, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

func handleShutdown(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	cancel()
}
