// linbcm emulates the body control module for a VAG rain/light/humidity
// sensor: it runs the LIN master schedule, decodes the sensor frames and
// serves the readings over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openrls/linbcm/internal/bcm"
	"github.com/openrls/linbcm/internal/lin"
	"github.com/openrls/linbcm/internal/logger"
	"github.com/openrls/linbcm/internal/sensor"
	"github.com/openrls/linbcm/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/linbcm/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run against the simulated sensor")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	verbose := flag.Bool("verbose", false, "Print a status line every cycle")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] linbcm starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.Bus.Type = "sim"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *verbose {
		cfg.Verbose = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	port, err := cfg.OpenPort()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	master := lin.NewMaster(port)
	defer master.Close()

	engine := bcm.NewEngine(master, bcm.EngineConfig{
		CyclePeriod:     time.Duration(cfg.Schedule.CycleMs) * time.Millisecond,
		ResponseTimeout: time.Duration(cfg.Bus.ResponseTimeoutMs) * time.Millisecond,
		LowRateDivisor:  cfg.Schedule.LowRateDivisor,
		LightMode:       cfg.LightMode(),
		Command:         cfg.Command,
		DRL:             cfg.DRL,
	})

	srv := server.New(cfg, engine)
	rec := logger.New(logger.Config{
		Enabled:    cfg.Logging.Enabled,
		Path:       cfg.Logging.Path,
		IntervalMs: cfg.Logging.Interval,
	})
	defer rec.Close()

	engine.OnCycle(func(snap bcm.Snapshot) {
		srv.Broadcast(snap)
		rec.Record(snap)
		if cfg.Verbose {
			fmt.Println(statusLine(snap))
		}
	})

	go func() {
		if err := engine.Run(ctx); err != nil {
			log.Printf("[main] engine exited: %v", err)
		}
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// statusLine renders one cycle as a single human-readable line.
func statusLine(snap bcm.Snapshot) string {
	line := fmt.Sprintf("[%-3s]", snap.DRL)
	if li := snap.Reading.Light; li != nil {
		sat := ""
		if li.Saturated {
			sat = " SAT"
		}
		line += fmt.Sprintf(" light=%d%s", li.Intensity, sat)
		if li.Intensity > 0xFF {
			line += fmt.Sprintf(" (%.0f%%)", sensor.LightPercent(li.Intensity))
		}
	}
	if env := snap.Reading.Env; env != nil {
		line += fmt.Sprintf(" %.1fC dew %.1fC solar=%d", env.TempC, env.SecondaryTempC, env.Solar)
	}
	if rain := snap.Reading.Rain; rain != nil {
		if rain.Active {
			line += fmt.Sprintf(" rain=ACTIVE(% X)", rain.Raw[:2])
		} else {
			line += " rain=dry"
		}
	}
	return line
}
