package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type flowStat struct {
	records int64
	calls   int64
}

var (
	errorsTerminal int64
	errorsSink     int64
	warnsTerminal  int64
	warnsSink      int64
	loginAttempts  int64
	fetchAttempts  int64
	sinkWrites     int64
	flows          sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	if strings.Contains(component, "sink") {
		atomic.AddInt64(&warnsSink, 1)
	} else {
		atomic.AddInt64(&warnsTerminal, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "sink") {
		atomic.AddInt64(&errorsSink, 1)
	} else {
		atomic.AddInt64(&errorsTerminal, 1)
	}
}

// IncrementLoginAttempt counts one upstream login call.
func IncrementLoginAttempt() {
	atomic.AddInt64(&loginAttempts, 1)
}

// IncrementFetchAttempt counts one physical query attempt against the
// terminal, together with the rows it produced.
func IncrementFetchAttempt(kind string, rows int) {
	atomic.AddInt64(&fetchAttempts, 1)
	recordFlow(kind, rows)
}

// IncrementSinkWrite counts one persisted batch.
func IncrementSinkWrite(rows int) {
	atomic.AddInt64(&sinkWrites, 1)
	recordFlow("sink", rows)
}

func recordFlow(name string, rows int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.calls, 1)
	atomic.AddInt64(&fs.records, int64(rows))
}

// StartReport begins periodic logging of runtime and data-flow statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	flowData := map[string]map[string]int64{}
	flows.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*flowStat)
		flowData[name] = map[string]int64{
			"calls":   atomic.LoadInt64(&fs.calls),
			"records": atomic.LoadInt64(&fs.records),
		}
		return true
	})

	fields := Fields{
		"errors_terminal": atomic.LoadInt64(&errorsTerminal),
		"errors_sink":     atomic.LoadInt64(&errorsSink),
		"warns_terminal":  atomic.LoadInt64(&warnsTerminal),
		"warns_sink":      atomic.LoadInt64(&warnsSink),
		"login_attempts":  atomic.LoadInt64(&loginAttempts),
		"fetch_attempts":  atomic.LoadInt64(&fetchAttempts),
		"sink_writes":     atomic.LoadInt64(&sinkWrites),
		"goroutines":      runtime.NumGoroutine(),
		"heap_mb":         int64(memStats.HeapAlloc) / 1024 / 1024,
		"flows":           flowData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("ErrorsTerminal"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsTerminal)))},
		{MetricName: aws.String("ErrorsSink"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsSink)))},
		{MetricName: aws.String("LoginAttempts"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&loginAttempts)))},
		{MetricName: aws.String("FetchAttempts"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchAttempts)))},
		{MetricName: aws.String("SinkWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&sinkWrites)))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.HeapAlloc) / 1024 / 1024)},
	}

	for name, stats := range flowData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("FlowRecords"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Flow"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["records"])),
		})
	}

	publishMetrics(ctx, data)
}
